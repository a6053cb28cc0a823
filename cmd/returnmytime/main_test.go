package main

import (
	"archive/zip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	testscript.Main(m, map[string]func(){
		"returnmytime": func() {
			os.Exit(run())
		},
	})
}

func TestScript(t *testing.T) {
	srv := httptest.NewServer(apiStub())
	// Scripts run as parallel subtests after TestScript returns.
	t.Cleanup(srv.Close)

	testscript.Run(t, testscript.Params{
		Dir:                 filepath.Join("testdata", "script"),
		RequireExplicitExec: true,
		Setup: func(e *testscript.Env) error {
			// Keep config, state, lock files and global installs inside the
			// temp dir, apart from the project rooted at $WORK.
			home := filepath.Join(e.WorkDir, "home")
			if err := os.MkdirAll(home, 0o755); err != nil {
				return err
			}
			e.Vars = append(e.Vars,
				"HOME="+home,
				"XDG_CONFIG_HOME="+filepath.Join(home, ".config"),
				"XDG_STATE_HOME="+filepath.Join(home, ".local", "state"),
				"CLAUDE_CONFIG_DIR="+filepath.Join(home, ".claude"),
				"RETURNMYTIME_API_URL="+srv.URL,
				"NO_COLOR=1",
			)
			return nil
		},
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			// is-symlink asserts that a path is (or is not) a symlink.
			// Usage: [!] is-symlink <path>
			"is-symlink": cmdIsSymlink,

			// file-contains asserts that a file contains (or doesn't contain) a substring.
			// Usage: [!] file-contains <path> <substring>
			"file-contains": cmdFileContains,

			// dir-not-exists asserts that a directory does not exist.
			// Usage: [!] dir-not-exists <path>
			"dir-not-exists": cmdDirNotExists,

			// make-zip zips a directory.
			// Usage: make-zip <dir> <archive.zip>
			"make-zip": cmdMakeZip,
		},
	})
}

// apiStub serves the search and url-to-markdown endpoints. Semantic search
// always fails so the lexical fallback is exercised.
func apiStub() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/skills", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("mode") == "semantic" {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"success":false,"error":"semantic search unavailable"}`)
			return
		}
		var results []map[string]any
		if strings.Contains(r.URL.Query().Get("search"), "pdf") {
			results = append(results, map[string]any{
				"id":               1,
				"name":             "pdf",
				"shortDescription": "Fill PDF forms",
				"repoOwner":        "acme",
				"repoName":         "skills",
				"path":             "skills/pdf/SKILL.md",
				"skillSlug":        "pdf",
				"isOfficial":       true,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": results})
	})
	mux.HandleFunc("/url", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"markdown": "# Example\n\nHello from the stub.",
				"title":    "Example",
				"finalUrl": body.URL,
				"report":   map[string]any{"strategy": "static"},
			},
		})
	})
	return mux
}

// cmdIsSymlink checks if a path is a symlink.
func cmdIsSymlink(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: is-symlink <path>")
	}
	path := ts.MkAbs(args[0])
	fi, err := os.Lstat(path)
	isSymlink := err == nil && fi.Mode()&os.ModeSymlink != 0

	if neg {
		if isSymlink {
			ts.Fatalf("%s is a symlink (expected not to be)", args[0])
		}
	} else {
		if !isSymlink {
			if err != nil {
				ts.Fatalf("%s: %v", args[0], err)
			}
			ts.Fatalf("%s is not a symlink (mode: %s)", args[0], fi.Mode())
		}
	}
}

// cmdFileContains checks if a file contains a substring.
func cmdFileContains(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) < 2 {
		ts.Fatalf("usage: file-contains <path> <substring>")
	}
	path := ts.MkAbs(args[0])
	substr := args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		ts.Fatalf("reading %s: %v", args[0], err)
	}

	contains := strings.Contains(string(data), substr)
	if neg {
		if contains {
			ts.Fatalf("file %s contains %q (expected not to)", args[0], substr)
		}
	} else {
		if !contains {
			ts.Fatalf("file %s does not contain %q\nContent:\n%s", args[0], substr, string(data))
		}
	}
}

// cmdDirNotExists checks that a directory does not exist.
func cmdDirNotExists(ts *testscript.TestScript, neg bool, args []string) {
	if len(args) != 1 {
		ts.Fatalf("usage: dir-not-exists <path>")
	}
	path := ts.MkAbs(args[0])
	_, err := os.Lstat(path)
	doesNotExist := os.IsNotExist(err)

	if neg {
		// ! dir-not-exists == dir exists
		if doesNotExist {
			ts.Fatalf("%s does not exist (expected it to exist)", args[0])
		}
	} else {
		if !doesNotExist {
			ts.Fatalf("%s exists (expected it not to)", args[0])
		}
	}
}

// cmdMakeZip writes every regular file under a directory into a zip archive.
func cmdMakeZip(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("make-zip does not support negation")
	}
	if len(args) != 2 {
		ts.Fatalf("usage: make-zip <dir> <archive.zip>")
	}
	src := ts.MkAbs(args[0])
	f, err := os.Create(ts.MkAbs(args[1]))
	if err != nil {
		ts.Fatalf("creating archive: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	err = filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
	if err != nil {
		ts.Fatalf("zipping %s: %v", args[0], err)
	}
	if err := zw.Close(); err != nil {
		ts.Fatalf("closing archive: %v", err)
	}
}
