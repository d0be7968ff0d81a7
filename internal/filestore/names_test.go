package filestore

import "testing"

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"chatdb", false},
		{"Chat_id", false},
		{"chat.v1", false},
		{"a-b_c.d", false},
		{"", true},
		{"..", true},
		{".", true},
		{"../etc/passwd", true},
		{"a/b", true},
		{"a%2e%2e", true},
		{"a\x00b", true},
	}
	for _, c := range cases {
		err := ValidateName("key", c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateName(%q) err=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}
