package obis

import "testing"

func TestFormatInstanceID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clock", "0000010000FF", "0-0:1.0.0*255"},
		{"disconnect control", "00002C0000FF", "0-0:44.0.0*255"},
		{"manufacturer specific", "000081000000", "0-0:129.0.0*0"},
		{"lower case", "0100010800ff", "1-0:1.8.0*255"},
		{"too short", "0000010000", "0000010000"},
		{"too long", "0000010000FF00", "0000010000FF00"},
		{"not hex", "00000100ZZFF", "00000100ZZFF"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatInstanceID(tt.in); got != tt.want {
				t.Errorf("FormatInstanceID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
