package engine

import "testing"

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"id3", []byte("ID3\x03\x00\x00\x00"), "mp3"},
		{"mpeg frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "mp3"},
		{"riff wav", []byte("RIFF\x24\x00\x00\x00WAVE"), "wav"},
		{"ogg", []byte("OggS\x00\x02\x00\x00"), "ogg"},
		{"m4a", append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypM4A ")...), "m4a"},
		{"aac adts", []byte{0xFF, 0xF1, 0x00, 0x00}, "aac"},
		{"too short", []byte{0x01}, "unknown"},
		{"unrecognized", []byte{0x01, 0x02, 0x03, 0x04}, "unknown"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetectFormat(c.data); got != c.want {
				t.Errorf("DetectFormat(%s) = %q, want %q", c.name, got, c.want)
			}
		})
	}
}
