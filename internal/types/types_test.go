package types

import (
	"testing"
)

func TestNormalizeRegion(t *testing.T) {
	tests := []struct {
		in   string
		want Region
	}{
		{"US", "us"},
		{" eu ", "eu"},
		{"kr", "kr"},
	}

	for _, tt := range tests {
		if got := NormalizeRegion(tt.in); got != tt.want {
			t.Errorf("NormalizeRegion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStageValid(t *testing.T) {
	if !StageLightweight.Valid() || !StageDeep.Valid() {
		t.Error("known stages should be valid")
	}
	if Stage("other").Valid() {
		t.Error("unknown stage should not be valid")
	}
}

func TestDifficultyString(t *testing.T) {
	if DifficultyMythic.String() != "mythic" {
		t.Errorf("DifficultyMythic.String() = %s", DifficultyMythic.String())
	}
	if Difficulty(99).String() != "unknown" {
		t.Errorf("Difficulty(99).String() = %s", Difficulty(99).String())
	}
}
