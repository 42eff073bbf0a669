package paramforward

import (
	"net/url"
	"reflect"
	"sort"
	"testing"
)

func TestRulesApply(t *testing.T) {
	tests := []struct {
		name    string
		rules   *Rules
		inbound map[string]string
		want    map[string]string
	}{
		{
			name:    "no rules forwards everything",
			rules:   New(nil, nil, nil, nil),
			inbound: map[string]string{"foo": "bar"},
			want:    map[string]string{"foo": "bar"},
		},
		{
			name:    "remove keeps unlisted keys",
			rules:   New([]string{"sup1", "sup2", "sup3"}, nil, nil, nil),
			inbound: map[string]string{"pass1": "val_pass1"},
			want:    map[string]string{"pass1": "val_pass1"},
		},
		{
			name:    "remove drops listed keys",
			rules:   New([]string{"sup1", "sup2", "sup3"}, nil, nil, nil),
			inbound: map[string]string{"sup1": "val_sup1"},
			want:    map[string]string{},
		},
		{
			name:  "remove with several keys",
			rules: New([]string{"sup1", "sup2", "sup3"}, nil, nil, nil),
			inbound: map[string]string{
				"pass1": "val_pass1", "pass2": "val_pass2",
				"sup1": "val_sup1", "sup3": "val_sup3",
			},
			want: map[string]string{"pass1": "val_pass1", "pass2": "val_pass2"},
		},
		{
			name:    "only drops unlisted keys",
			rules:   New(nil, []string{"only1", "only2", "only3"}, nil, nil),
			inbound: map[string]string{"pass1": "val_pass1"},
			want:    map[string]string{},
		},
		{
			name:  "only keeps listed keys",
			rules: New(nil, []string{"only1", "only2", "only3"}, nil, nil),
			inbound: map[string]string{
				"pass1": "val_pass1", "only2": "val_only2",
				"only1": "val_only1", "pass3": "val_pass3",
			},
			want: map[string]string{"only1": "val_only1", "only2": "val_only2"},
		},
		{
			name:    "empty only drops every inbound key",
			rules:   New(nil, []string{}, nil, nil),
			inbound: map[string]string{"a": "1", "b": "2"},
			want:    map[string]string{},
		},
		{
			name:    "remove wins over only",
			rules:   New([]string{"a"}, []string{"a", "b"}, nil, nil),
			inbound: map[string]string{"a": "1", "b": "2"},
			want:    map[string]string{"b": "2"},
		},
		{
			name:    "defaults present without inbound",
			rules:   New(nil, nil, map[string]string{"def1": "val_def1", "def2": "val_def2"}, nil),
			inbound: map[string]string{},
			want:    map[string]string{"def1": "val_def1", "def2": "val_def2"},
		},
		{
			name:    "inbound overrides default",
			rules:   New(nil, nil, map[string]string{"def1": "val_def1", "def2": "val_def2"}, nil),
			inbound: map[string]string{"pass1": "val_pass1", "def1": "new_val_def1"},
			want:    map[string]string{"pass1": "val_pass1", "def1": "new_val_def1", "def2": "val_def2"},
		},
		{
			name:    "set present without inbound",
			rules:   New(nil, nil, nil, map[string]string{"set1": "val_set1", "set2": "val_set2"}),
			inbound: map[string]string{},
			want:    map[string]string{"set1": "val_set1", "set2": "val_set2"},
		},
		{
			name:    "set overrides inbound",
			rules:   New(nil, nil, nil, map[string]string{"set1": "val_set1", "set2": "val_set2"}),
			inbound: map[string]string{"pass1": "val_pass1", "set1": "new_val_set1"},
			want:    map[string]string{"pass1": "val_pass1", "set1": "val_set1", "set2": "val_set2"},
		},
		{
			name:    "set is exempt from remove and only",
			rules:   New([]string{"token"}, []string{"id"}, nil, map[string]string{"token": "fixed"}),
			inbound: map[string]string{"token": "guess", "id": "7", "x": "y"},
			want:    map[string]string{"token": "fixed", "id": "7"},
		},
		{
			name:    "defaults are not filtered",
			rules:   New([]string{"source"}, []string{"id"}, map[string]string{"source": "hook"}, nil),
			inbound: map[string]string{"source": "caller", "id": "7"},
			want:    map[string]string{"source": "hook", "id": "7"},
		},
		{
			name: "default less than inbound less than set",
			rules: New(nil, nil,
				map[string]string{"k": "default"},
				map[string]string{"k": "set"}),
			inbound: map[string]string{"k": "inbound"},
			want:    map[string]string{"k": "set"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rules.Apply(tt.inbound)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	defaults := map[string]string{"d": "1"}
	set := map[string]string{"s": "2"}
	inbound := map[string]string{"d": "x", "i": "3"}
	rules := New(nil, nil, defaults, set)

	first := rules.Apply(inbound)
	first["injected"] = "oops"
	second := rules.Apply(map[string]string{})

	if !reflect.DeepEqual(defaults, map[string]string{"d": "1"}) {
		t.Errorf("defaults mutated: %v", defaults)
	}
	if !reflect.DeepEqual(set, map[string]string{"s": "2"}) {
		t.Errorf("set mutated: %v", set)
	}
	if !reflect.DeepEqual(inbound, map[string]string{"d": "x", "i": "3"}) {
		t.Errorf("inbound mutated: %v", inbound)
	}
	if !reflect.DeepEqual(second, map[string]string{"d": "1", "s": "2"}) {
		t.Errorf("request state leaked into a later request: %v", second)
	}
}

func TestDropped(t *testing.T) {
	rules := New([]string{"secret"}, []string{"id", "secret"}, nil, nil)
	got := rules.Dropped(map[string]string{"secret": "x", "id": "1", "other": "y"})
	sort.Strings(got)
	want := []string{"other", "secret"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Dropped() = %v, want %v", got, want)
	}
}

func TestFromValues(t *testing.T) {
	values := url.Values{
		"a": {"1", "2"},
		"b": {"x"},
		"c": {},
	}
	got := FromValues(values)
	want := map[string]string{"a": "1", "b": "x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FromValues() = %v, want %v", got, want)
	}
}
