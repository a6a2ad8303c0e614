package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeSkill(name string, keywords, tags, patterns []string) *LoadedSkill {
	return &LoadedSkill{
		Manifest: &Manifest{
			Skill: Meta{Name: name, Version: "1.0.0", Description: name + " skill", Tags: tags},
			Activation: Activation{
				Keywords:         keywords,
				Patterns:         patterns,
				MaxContextTokens: 1000,
			},
		},
		ContentHash: "0000",
	}
}

func TestPrefilterEmptyMessageReturnsNothing(t *testing.T) {
	skills := []*LoadedSkill{makeSkill("test", []string{"write"}, nil, nil)}
	result := Prefilter("", skills, 3, DefaultMaxContextTokens)
	assert.Empty(t, result)
}

func TestPrefilterNoMatchingSkills(t *testing.T) {
	skills := []*LoadedSkill{makeSkill("cooking", []string{"recipe", "cook", "bake"}, nil, nil)}
	result := Prefilter("Help me write an email", skills, 3, DefaultMaxContextTokens)
	assert.Empty(t, result)
}

func TestPrefilterKeywordExactMatch(t *testing.T) {
	skills := []*LoadedSkill{makeSkill("writing", []string{"write", "edit"}, nil, nil)}
	result := Prefilter("Please write an email", skills, 3, DefaultMaxContextTokens)
	require.Len(t, result, 1)
	assert.Equal(t, "writing", result[0].Manifest.Name())
}

func TestPrefilterKeywordSubstringMatch(t *testing.T) {
	skills := []*LoadedSkill{makeSkill("writing", []string{"writing"}, nil, nil)}
	result := Prefilter("I need help with rewriting this text", skills, 3, DefaultMaxContextTokens)
	require.Len(t, result, 1)
}

func TestPrefilterTagMatch(t *testing.T) {
	skills := []*LoadedSkill{makeSkill("writing", nil, []string{"prose", "email"}, nil)}
	result := Prefilter("Draft an email for me", skills, 3, DefaultMaxContextTokens)
	require.Len(t, result, 1)
}

func TestPrefilterRegexPatternMatch(t *testing.T) {
	skills := []*LoadedSkill{makeSkill("writing", nil, nil, []string{`(?i)\b(write|draft)\b.*\b(email|letter)\b`})}
	result := Prefilter("Please draft an email to my boss", skills, 3, DefaultMaxContextTokens)
	require.Len(t, result, 1)
}

func TestPrefilterScoringPriority(t *testing.T) {
	skills := []*LoadedSkill{
		makeSkill("cooking", []string{"cook"}, nil, nil),
		makeSkill("writing", []string{"write", "draft"}, []string{"email"}, []string{`(?i)\b(write|draft)\b.*\bemail\b`}),
	}
	result := Prefilter("Write and draft an email", skills, 3, DefaultMaxContextTokens)
	require.Len(t, result, 1)
	assert.Equal(t, "writing", result[0].Manifest.Name())
}

func TestPrefilterMaxCandidatesLimit(t *testing.T) {
	skills := []*LoadedSkill{
		makeSkill("a", []string{"test"}, nil, nil),
		makeSkill("b", []string{"test"}, nil, nil),
		makeSkill("c", []string{"test"}, nil, nil),
	}
	result := Prefilter("test", skills, 2, DefaultMaxContextTokens)
	assert.Len(t, result, 2)
}

func TestPrefilterContextBudgetLimit(t *testing.T) {
	big1 := makeSkill("big", []string{"test"}, nil, nil)
	big1.Manifest.Activation.MaxContextTokens = 3000
	big2 := makeSkill("also_big", []string{"test"}, nil, nil)
	big2.Manifest.Activation.MaxContextTokens = 3000

	result := Prefilter("test", []*LoadedSkill{big1, big2}, 5, 4000)
	assert.Len(t, result, 1)
}

func TestPrefilterInvalidRegexHandledGracefully(t *testing.T) {
	skills := []*LoadedSkill{makeSkill("bad", []string{"test"}, nil, []string{"[invalid regex"})}
	result := Prefilter("test", skills, 3, DefaultMaxContextTokens)
	assert.Len(t, result, 1)
}
