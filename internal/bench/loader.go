package bench

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"encoding/json"
)

// LoadTasks reads a JSONL stream of task records, skipping blank lines,
// and reports the source line number on a malformed entry.
func LoadTasks(r io.Reader) ([]Task, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var tasks []Task
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(line), &task); err != nil {
			return nil, fmt.Errorf("task line %d: %w", lineNum, err)
		}
		tasks = append(tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading task stream: %w", err)
	}
	return tasks, nil
}
