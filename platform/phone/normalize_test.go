package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"(11) 98765-4321", "+5511987654321"},
		{"+55 11 98765-4321", "+5511987654321"},
		{"  ", ""},
		{"not a phone", "not a phone"},
	}
	for _, tc := range cases {
		if got := NormalizeE164(tc.in); got != tc.want {
			t.Errorf("NormalizeE164(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCountryCode(t *testing.T) {
	if got := CountryCode("+5511987654321"); got != "BR" {
		t.Errorf("CountryCode(BR) = %q", got)
	}
	if got := CountryCode("+351912345678"); got != "PT" {
		t.Errorf("CountryCode(PT) = %q", got)
	}
	if got := CountryCode("abc"); got != "" {
		t.Errorf("CountryCode(invalid) = %q, want empty", got)
	}
}
