package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrExists is returned by WriteDefaults when a target file already exists
// and force is not set.
var ErrExists = errors.New("file already exists")

// DefaultMainYAML is the configuration written by `yaraforge init`.
const DefaultMainYAML = `# yaraforge configuration
tags:
  PE:
    enabled: true
    analysers: strings,header
    processors: strings,header
  ELF:
    enabled: true
    analysers: strings,header
    processors: strings,header
  MACHO:
    enabled: false
    analysers: strings
    processors: strings

pipeline:
  results_scope: tag
  isolate_analysis_failures: true
  task_timeout: 30s
  cache_content: false

scoring:
  table: string_scores.tsv
  top: 6

analysis:
  debug_dir: ""

output:
  dir: .
  aggregate: false
`

// DefaultScoresTSV is the starter scoring table: one case-insensitive
// regular expression and an integer weight per line, tab separated.
// Fields containing tabs are quoted with ~.
const DefaultScoresTSV = `# pattern	weight
https?://	5
\.onion	8
cmd(\.exe)?\s	6
powershell	6
-enc(odedcommand)?\s	6
/bin/(ba)?sh	6
HKEY_(LOCAL_MACHINE|CURRENT_USER)	4
\\CurrentVersion\\Run	6
CreateRemoteThread	5
VirtualAlloc(Ex)?	4
WriteProcessMemory	5
(Get|Set)ProcAddress	2
LoadLibrary	2
InternetOpen(Url)?	4
WSAStartup	3
crontab	4
/etc/(passwd|shadow)	5
\.(ps1|vbs|bat|dll|exe)$	3
[a-z0-9+/]{40,}={0,2}	3
\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}	4
(mutex|global\\)	2
kernel32|ntdll|user32	-2
Microsoft Corporation	-3
GCC:|GLIBC_	-3
`

// WriteDefaults writes DefaultMainYAML and DefaultScoresTSV into dir and
// returns the written paths. Existing files are kept unless force is set.
func WriteDefaults(dir string, force bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating config dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{DefaultMainFile, DefaultMainYAML},
		{DefaultScoresFile, DefaultScoresTSV},
	}

	if !force {
		for _, f := range files {
			path := filepath.Join(dir, f.name)
			if _, err := os.Stat(path); err == nil {
				return nil, fmt.Errorf("%s: %w (use --force to overwrite)", path, ErrExists)
			}
		}
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
