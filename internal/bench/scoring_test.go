package bench

import "testing"

func TestNormalizeAnswer(t *testing.T) {
	cases := map[string]string{
		"  Hello   World.  ": "hello world",
		"Yes!":                "yes",
		"42":                  "42",
		"  ":                  "",
	}
	for input, want := range cases {
		if got := normalizeAnswer(input); got != want {
			t.Errorf("normalizeAnswer(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestExactMatch(t *testing.T) {
	score := ExactMatch("4", "4")
	if score.Value != 1.0 || score.Label != "pass" {
		t.Fatalf("unexpected score: %+v", score)
	}

	score = ExactMatch("4", "four.")
	if score.Value != 0.0 || score.Label != "fail" {
		t.Fatalf("unexpected score: %+v", score)
	}
	if score.Details != `expected "4", got "four"` {
		t.Errorf("details = %q", score.Details)
	}
}

func TestContainsMatchWithPunctuation(t *testing.T) {
	score := ContainsMatch("hello", "Hello there!")
	if score.Value != 1.0 || score.Label != "pass" {
		t.Fatalf("unexpected score: %+v", score)
	}

	score = ContainsMatch("xyz", "Hello there!")
	if score.Value != 0.0 {
		t.Fatalf("unexpected score: %+v", score)
	}
}

func TestRegexMatch(t *testing.T) {
	if score := RegexMatch(`\d{4}`, "The year is 2024."); score.Value != 1.0 {
		t.Fatalf("expected pass, got %+v", score)
	}
	if score := RegexMatch(`\d{4}`, "no numbers here"); score.Value != 0.0 {
		t.Fatalf("expected fail, got %+v", score)
	}
	score := RegexMatch(`[invalid`, "anything")
	if score.Value != 0.0 {
		t.Fatalf("expected fail for invalid pattern, got %+v", score)
	}
}

func TestScoreTaskDispatch(t *testing.T) {
	task := &Task{ID: "t1", Scorer: "exact", Expected: "4"}
	sub := &Submission{Response: "4"}

	score, err := ScoreTask(nil, task, sub, nil)
	if err != nil {
		t.Fatalf("ScoreTask() error = %v", err)
	}
	if score.Label != "pass" {
		t.Fatalf("unexpected score: %+v", score)
	}
}

func TestScoreTaskUnknownScorer(t *testing.T) {
	task := &Task{ID: "t2", Scorer: "mystery"}
	_, err := ScoreTask(nil, task, &Submission{}, nil)
	if err == nil {
		t.Fatal("expected an error for an unknown scorer")
	}
}

func TestScoreTaskLLMRequiresJudge(t *testing.T) {
	task := &Task{ID: "t3", Scorer: "llm"}
	_, err := ScoreTask(nil, task, &Submission{}, nil)
	if err == nil {
		t.Fatal("expected an error when the llm scorer has no Judge")
	}
}
