package fit

import (
	"errors"
	"testing"
)

func dataMsg(global uint16, ts uint32, hasTS bool) *Message {
	return &Message{Kind: KindData, GlobalNum: global, Timestamp: ts, HasTimestamp: hasTS, Start: 100}
}

func TestValidatorRules(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		msgs  []*Message
		want  error
	}{
		{
			name:  "file_id first",
			rules: DefaultRules(),
			msgs:  []*Message{dataMsg(MesgFileID, 0, false), dataMsg(MesgRecord, 10, true), dataMsg(MesgRecord, 10, true)},
		},
		{
			name:  "record before file_id",
			rules: DefaultRules(),
			msgs:  []*Message{dataMsg(MesgRecord, 10, true)},
			want:  ErrFileIDNotFirst,
		},
		{
			name:  "second file_id",
			rules: DefaultRules(),
			msgs:  []*Message{dataMsg(MesgFileID, 0, false), dataMsg(MesgFileID, 0, false)},
			want:  ErrDuplicateSingleton,
		},
		{
			name:  "decreasing timestamp",
			rules: DefaultRules(),
			msgs:  []*Message{dataMsg(MesgFileID, 0, false), dataMsg(MesgRecord, 1009388457, true), dataMsg(MesgRecord, 706297609, true)},
			want:  ErrNonMonotonicTimestamp,
		},
		{
			name:  "decreasing across message types",
			rules: DefaultRules(),
			msgs:  []*Message{dataMsg(MesgFileID, 0, false), dataMsg(MesgEvent, 50, true), dataMsg(MesgRecord, 40, true)},
			want:  ErrNonMonotonicTimestamp,
		},
		{
			name:  "monotonic scope limited to records",
			rules: Rules{MonotonicMessages: []uint16{MesgRecord}},
			msgs:  []*Message{dataMsg(MesgEvent, 50, true), dataMsg(MesgRecord, 40, true), dataMsg(MesgEvent, 10, true)},
		},
		{
			name:  "no file_id requirement",
			rules: Rules{},
			msgs:  []*Message{dataMsg(MesgRecord, 1, true), dataMsg(MesgFileID, 0, false), dataMsg(MesgFileID, 0, false)},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := NewValidator(tc.rules)
			var err error
			for _, m := range tc.msgs {
				if err = v.Check(m); err != nil {
					break
				}
			}
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Check = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Check = %v, want %v", err, tc.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Class != ClassSemantic || de.Offset != 100 {
				t.Fatalf("err = %#v, want semantic DecodeError at 100", err)
			}
		})
	}
}

func TestValidatorDefinitionsAlwaysAccepted(t *testing.T) {
	v := NewValidator(DefaultRules())
	if err := v.Check(&Message{Kind: KindDefinition, GlobalNum: MesgRecord}); err != nil {
		t.Fatalf("Check(definition) = %v", err)
	}
	if v.DataMessages() != 0 {
		t.Fatalf("DataMessages = %d, want 0", v.DataMessages())
	}
}

func TestValidatorSnapshotsAreIndependent(t *testing.T) {
	rules := DefaultRules()
	rules.Singletons = append(rules.Singletons, 34)
	v := NewValidator(rules)
	if err := v.Check(dataMsg(MesgFileID, 0, false)); err != nil {
		t.Fatalf("Check: %v", err)
	}
	a, b := v, v
	if err := a.Check(dataMsg(34, 0, false)); err != nil {
		t.Fatalf("a.Check: %v", err)
	}
	if err := b.Check(dataMsg(MesgRecord, 5, true)); err != nil {
		t.Fatalf("b.Check: %v", err)
	}
	if err := b.Check(dataMsg(34, 6, true)); err != nil {
		t.Fatalf("b.Check(activity) = %v, want nil", err)
	}
	if err := a.Check(dataMsg(MesgRecord, 1, true)); err != nil {
		t.Fatalf("a saw b's timestamp: %v", err)
	}
	if err := v.Check(dataMsg(34, 0, false)); err != nil {
		t.Fatalf("original saw a copy's singleton: %v", err)
	}
}

func TestValidatorFailureDoesNotMutate(t *testing.T) {
	v := NewValidator(DefaultRules())
	v.Check(dataMsg(MesgFileID, 0, false))
	v.Check(dataMsg(MesgRecord, 100, true))
	if err := v.Check(dataMsg(MesgRecord, 50, true)); err == nil {
		t.Fatalf("expected failure")
	}
	if ts, ok := v.LastTimestamp(); !ok || ts != 100 {
		t.Fatalf("LastTimestamp = %d %v, want 100", ts, ok)
	}
	if v.DataMessages() != 2 {
		t.Fatalf("DataMessages = %d, want 2", v.DataMessages())
	}
}
