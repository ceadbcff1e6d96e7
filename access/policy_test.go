package access

import (
	"testing"

	"github.com/pantheon-ai/mnemo/memory"
)

func TestLevelOps(t *testing.T) {
	tests := []struct {
		level   Level
		granted []string
		denied  []string
	}{
		{LevelRead, []string{OpRetrieve, OpSearch, OpList}, []string{OpStore, OpShare, OpDelete}},
		{LevelWrite, []string{OpRetrieve, OpStore, OpUpdate, OpShare}, []string{OpDelete}},
		{LevelDelete, []string{OpRetrieve, OpStore, OpDelete}, nil},
		{LevelAdmin, []string{OpRetrieve, OpStore, OpShare, OpDelete}, nil},
		{Level("BOGUS"), nil, []string{OpRetrieve, OpStore, OpDelete}},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			for _, op := range tt.granted {
				if !tt.level.Allows(op) {
					t.Errorf("%s should allow %s", tt.level, op)
				}
			}
			for _, op := range tt.denied {
				if tt.level.Allows(op) {
					t.Errorf("%s should not allow %s", tt.level, op)
				}
			}
		})
	}
}

func TestLevelIsValid(t *testing.T) {
	for _, l := range []Level{LevelRead, LevelWrite, LevelDelete, LevelAdmin} {
		if !l.IsValid() {
			t.Errorf("%s should be valid", l)
		}
	}
	if Level("root").IsValid() {
		t.Error("unknown level should be invalid")
	}
}

func TestPolicyAllowedKinds(t *testing.T) {
	p := &Policy{
		Persona:         memory.PersonaShared,
		Level:           LevelRead,
		RestrictedKinds: []memory.Kind{memory.KindWorking},
	}

	kinds := p.AllowedKinds()
	if len(kinds) != 3 {
		t.Fatalf("AllowedKinds() returned %d kinds, want 3", len(kinds))
	}
	for _, k := range kinds {
		if k == memory.KindWorking {
			t.Error("restricted kind leaked into AllowedKinds()")
		}
	}
}

func TestPolicyValidate(t *testing.T) {
	valid := &Policy{Persona: memory.PersonaAthena, Level: LevelAdmin}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	badPersona := &Policy{Persona: "unknown", Level: LevelRead}
	if err := badPersona.Validate(); err == nil {
		t.Error("Validate() accepted unknown persona")
	}

	badLevel := &Policy{Persona: memory.PersonaAthena, Level: "SUPER"}
	if err := badLevel.Validate(); err == nil {
		t.Error("Validate() accepted unknown level")
	}
}

func TestDefaultPolicies(t *testing.T) {
	policies := DefaultPolicies()

	// Every persona in the closed set has a row, and every row is valid.
	for _, persona := range memory.Personas() {
		p, ok := policies[persona]
		if !ok {
			t.Fatalf("no policy for %s", persona)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("policy for %s invalid: %v", persona, err)
		}
	}

	// The matrix of spec: admins read everything, field personas read a
	// restricted subset.
	athena := policies[memory.PersonaAthena]
	for _, target := range memory.Personas() {
		if !athena.AllowsReadFrom(target) {
			t.Errorf("athena should read from %s", target)
		}
	}
	if athena.AllowsWriteTo(memory.PersonaHestia) {
		t.Error("athena writes are scoped to shared and self")
	}

	artemis := policies[memory.PersonaArtemis]
	if artemis.Level != LevelWrite {
		t.Errorf("artemis level = %s, want WRITE", artemis.Level)
	}
	if artemis.AllowsReadFrom(memory.PersonaHestia) {
		t.Error("artemis should not read from hestia")
	}
	if !artemis.AllowsReadFrom(memory.PersonaShared) {
		t.Error("artemis should read from shared")
	}

	hestia := policies[memory.PersonaHestia]
	if !hestia.AllowsWriteTo(memory.PersonaSystem) {
		t.Error("hestia should write to system")
	}
}
