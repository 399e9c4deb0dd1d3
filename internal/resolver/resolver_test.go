package resolver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sdongmaker/emby-cdn-preheat/internal/config"
)

func newTestResolver(mappings config.MappingsConfig, blacklist []string, smart config.SmartMatchConfig) *Resolver {
	return New(mappings, blacklist, smart)
}

func TestResolveDirectMapping(t *testing.T) {
	r := newTestResolver(config.MappingsConfig{
		Container: []config.MappingRule{{Source: "/media/", Target: "/mnt/media/"}},
		CDN:       []config.MappingRule{{Source: "/mnt/media/", Target: "https://cdn.example/"}},
	}, nil, config.SmartMatchConfig{})

	res := r.Resolve("/media/movies/Inception (2010)/Inception.mkv")

	if res.Status != StatusResolved {
		t.Fatalf("Status = %s, want %s (warning: %s)", res.Status, StatusResolved, res.Warning)
	}
	if res.HostPath != "/mnt/media/movies/Inception (2010)/Inception.mkv" {
		t.Errorf("HostPath = %q", res.HostPath)
	}
	if res.CDNURL != "https://cdn.example/movies/Inception (2010)/Inception.mkv" {
		t.Errorf("CDNURL = %q", res.CDNURL)
	}
	if res.Degraded {
		t.Error("Degraded = true, want false")
	}
}

func TestResolveBlacklist(t *testing.T) {
	r := newTestResolver(config.MappingsConfig{
		Container: []config.MappingRule{{Source: "/media/", Target: "/mnt/media/"}},
		CDN:       []config.MappingRule{{Source: "/mnt/media/", Target: "https://cdn.example/"}},
	}, []string{"/media/temp/"}, config.SmartMatchConfig{})

	res := r.Resolve("/media/temp/x.mkv")

	if res.Status != StatusSkipped {
		t.Fatalf("Status = %s, want %s", res.Status, StatusSkipped)
	}
	if res.HostPath != "" || res.CDNURL != "" {
		t.Errorf("blacklisted path produced HostPath=%q CDNURL=%q, want empty", res.HostPath, res.CDNURL)
	}
}

func TestResolveDegradedContainerMapping(t *testing.T) {
	r := newTestResolver(config.MappingsConfig{
		Container: []config.MappingRule{{Source: "/media/", Target: "/mnt/media/"}},
		CDN:       []config.MappingRule{{Source: "/data/", Target: "https://cdn.example/"}},
	}, nil, config.SmartMatchConfig{})

	res := r.Resolve("/data/movies/a.mkv")

	if res.Status != StatusResolved {
		t.Fatalf("Status = %s, want %s", res.Status, StatusResolved)
	}
	if !res.Degraded {
		t.Error("Degraded = false, want true when no container rule matches")
	}
	if res.Warning == "" {
		t.Error("Warning is empty, want degradation note")
	}
	if res.CDNURL != "https://cdn.example/movies/a.mkv" {
		t.Errorf("CDNURL = %q", res.CDNURL)
	}
}

func TestResolveStrmIndirection(t *testing.T) {
	dir := t.TempDir()
	strmPath := filepath.Join(dir, "x.strm")
	if err := os.WriteFile(strmPath, []byte("/real/x.mp4\n"), 0o644); err != nil {
		t.Fatalf("write strm: %v", err)
	}

	r := newTestResolver(config.MappingsConfig{
		Container: []config.MappingRule{{Source: "/media/", Target: dir + "/"}},
		CDN:       []config.MappingRule{{Source: "/real/", Target: "https://cdn.example/"}},
	}, nil, config.SmartMatchConfig{})

	res := r.Resolve("/media/x.strm")

	if res.Status != StatusResolved {
		t.Fatalf("Status = %s, want %s (warning: %s)", res.Status, StatusResolved, res.Warning)
	}
	if res.HostPath != "/real/x.mp4" {
		t.Errorf("HostPath = %q, want /real/x.mp4", res.HostPath)
	}
	if res.CDNURL != "https://cdn.example/x.mp4" {
		t.Errorf("CDNURL = %q, want https://cdn.example/x.mp4", res.CDNURL)
	}
}

func TestResolveStrmContentMapping(t *testing.T) {
	dir := t.TempDir()
	strmPath := filepath.Join(dir, "e01.strm")
	if err := os.WriteFile(strmPath, []byte("smb://nas/media/show/e01.mkv"), 0o644); err != nil {
		t.Fatalf("write strm: %v", err)
	}

	r := newTestResolver(config.MappingsConfig{
		Container:   []config.MappingRule{{Source: "/strm/", Target: dir + "/"}},
		StrmContent: []config.MappingRule{{Source: "smb://nas/media/", Target: "/mnt/nas/media/"}},
		CDN:         []config.MappingRule{{Source: "/mnt/nas/media/", Target: "https://cdn.example/"}},
	}, nil, config.SmartMatchConfig{})

	res := r.Resolve("/strm/e01.strm")

	if res.Status != StatusResolved {
		t.Fatalf("Status = %s, want %s (warning: %s)", res.Status, StatusResolved, res.Warning)
	}
	if res.HostPath != "/mnt/nas/media/show/e01.mkv" {
		t.Errorf("HostPath = %q", res.HostPath)
	}
	if res.CDNURL != "https://cdn.example/show/e01.mkv" {
		t.Errorf("CDNURL = %q", res.CDNURL)
	}
}

func TestResolveStrmAborts(t *testing.T) {
	dir := t.TempDir()
	emptyStrm := filepath.Join(dir, "empty.strm")
	if err := os.WriteFile(emptyStrm, []byte("   \n"), 0o644); err != nil {
		t.Fatalf("write strm: %v", err)
	}

	r := newTestResolver(config.MappingsConfig{
		Container: []config.MappingRule{{Source: "/media/", Target: dir + "/"}},
		CDN:       []config.MappingRule{{Source: dir, Target: "https://cdn.example"}},
	}, nil, config.SmartMatchConfig{})

	tests := []struct {
		name string
		path string
	}{
		{name: "missing strm file", path: "/media/missing.strm"},
		{name: "empty strm file", path: "/media/empty.strm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.path)
			if res.Status != StatusAborted {
				t.Fatalf("Status = %s, want %s", res.Status, StatusAborted)
			}
			if res.HostPath != "" || res.CDNURL != "" {
				t.Errorf("aborted resolution produced HostPath=%q CDNURL=%q", res.HostPath, res.CDNURL)
			}
			if res.Warning == "" {
				t.Error("Warning is empty, want abort reason")
			}
		})
	}
}

func TestResolveUnresolved(t *testing.T) {
	r := newTestResolver(config.MappingsConfig{
		Container: []config.MappingRule{{Source: "/media/", Target: "/mnt/media/"}},
		CDN:       []config.MappingRule{{Source: "/elsewhere/", Target: "https://cdn.example/"}},
	}, nil, config.SmartMatchConfig{})

	res := r.Resolve("/media/movies/a.mkv")

	if res.Status != StatusUnresolved {
		t.Fatalf("Status = %s, want %s", res.Status, StatusUnresolved)
	}
	if res.HostPath != "/mnt/media/movies/a.mkv" {
		t.Errorf("HostPath = %q, want host path recorded despite missing URL", res.HostPath)
	}
	if res.CDNURL != "" {
		t.Errorf("CDNURL = %q, want empty", res.CDNURL)
	}
}

func TestResolveSmartMatch(t *testing.T) {
	smart := config.SmartMatchConfig{
		Enabled:  true,
		Keywords: []string{"movies", "series"},
		CDNBase:  "https://cdn.example/",
	}
	r := newTestResolver(config.MappingsConfig{}, nil, smart)

	tests := []struct {
		name    string
		path    string
		want    string
		wantHit bool
	}{
		{
			name:    "keyword segment matched",
			path:    "/data/movies/Inception/Inception.mp4",
			want:    "https://cdn.example/movies/Inception/Inception.mp4",
			wantHit: true,
		},
		{
			name:    "keyword priority order decides",
			path:    "/data/series/movies/a.mp4",
			want:    "https://cdn.example/movies/a.mp4",
			wantHit: true,
		},
		{
			name:    "substring of a segment does not match",
			path:    "/data/oldmovies/a.mp4",
			wantHit: false,
		},
		{
			name:    "no keyword present",
			path:    "/data/music/a.flac",
			wantHit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.path)
			if tt.wantHit {
				if res.Status != StatusResolved {
					t.Fatalf("Status = %s, want %s", res.Status, StatusResolved)
				}
				if res.CDNURL != tt.want {
					t.Errorf("CDNURL = %q, want %q", res.CDNURL, tt.want)
				}
			} else if res.Status != StatusUnresolved {
				t.Fatalf("Status = %s, want %s", res.Status, StatusUnresolved)
			}
		})
	}
}

func TestResolveSmartMatchBaseWithoutSlash(t *testing.T) {
	smart := config.SmartMatchConfig{
		Enabled:  true,
		Keywords: []string{"movies"},
		CDNBase:  "https://cdn.example",
	}
	r := newTestResolver(config.MappingsConfig{}, nil, smart)

	res := r.Resolve("/data/movies/a.mp4")
	if res.Status != StatusResolved {
		t.Fatalf("Status = %s, want %s", res.Status, StatusResolved)
	}
	if !strings.HasPrefix(res.CDNURL, "https://cdn.example/movies/") {
		t.Errorf("CDNURL = %q, want base joined with a single slash", res.CDNURL)
	}
}

func TestResolveStrmExtensionCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.STRM"), []byte("/real/x.mp4"), 0o644); err != nil {
		t.Fatalf("write strm: %v", err)
	}

	r := newTestResolver(config.MappingsConfig{
		Container: []config.MappingRule{{Source: "/media/", Target: dir + "/"}},
		CDN:       []config.MappingRule{{Source: "/real/", Target: "https://cdn.example/"}},
	}, nil, config.SmartMatchConfig{})

	res := r.Resolve("/media/x.STRM")
	if res.Status != StatusResolved {
		t.Fatalf("Status = %s, want %s (warning: %s)", res.Status, StatusResolved, res.Warning)
	}
	if res.CDNURL != "https://cdn.example/x.mp4" {
		t.Errorf("CDNURL = %q", res.CDNURL)
	}
}
