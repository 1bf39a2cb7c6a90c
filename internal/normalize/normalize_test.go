package normalize

import (
	"slices"
	"testing"
)

func TestSkill(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		expect string
	}{
		{input: "  Node.JS ", expect: "node js"},
		{input: "Machine-Learning", expect: "machine learning"},
		{input: "C++", expect: "c"},
		{input: "  \t ", expect: ""},
		{input: "---", expect: ""},
		{input: "Go   Lang", expect: "go lang"},
		{input: "Köln", expect: "köln"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := Skill(tt.input); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestSkillIsIdempotent(t *testing.T) {
	for _, s := range []string{"Node.JS", "REST  API's", "k8s/Kubernetes"} {
		once := Skill(s)
		if twice := Skill(once); twice != once {
			t.Fatalf("normalize not idempotent for %q: %q vs %q", s, once, twice)
		}
	}
}

func TestSkills(t *testing.T) {
	got := Skills([]string{"Python", "python ", "", "SQL", "  ", "Docker"})
	want := []string{"docker", "python", "sql"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if got := Skills(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestWithout(t *testing.T) {
	got := Without([]string{"Go", "SQL", "Docker"}, []string{"docker", "GO"})
	if !slices.Equal(got, []string{"sql"}) {
		t.Fatalf("unexpected result: %v", got)
	}
}

func TestIntersect(t *testing.T) {
	a := SkillSet([]string{"go", "sql", "aws"})
	b := SkillSet([]string{"AWS", "Go", "rust"})
	if got := Intersect(a, b); !slices.Equal(got, []string{"aws", "go"}) {
		t.Fatalf("unexpected intersection: %v", got)
	}
}

func TestEducationLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		expect int
	}{
		{input: "", expect: LevelNone},
		{input: "High school", expect: LevelNone},
		{input: "Diploma in Mechanical Engineering", expect: LevelAssociate},
		{input: "B.Tech in Computer Science", expect: LevelBachelor},
		{input: "Bachelor's degree", expect: LevelBachelor},
		{input: "M.Sc. Physics; B.Sc. Physics", expect: LevelMaster},
		{input: "MBA", expect: LevelMaster},
		{input: "PhD in Machine Learning, Master of Science", expect: LevelDoctorate},
		{input: "Worked at the embassy", expect: LevelNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := EducationLevel(tt.input); got != tt.expect {
				t.Fatalf("expected level %d, got %d", tt.expect, got)
			}
		})
	}
}
