// SPDX-License-Identifier: MPL-2.0

package git

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

type FileStatus struct {
	Path string
	// XY holds the index and worktree codes, "??" for untracked files.
	XY string
}

type Status struct {
	Branch   string
	Upstream string
	Ahead    int
	Behind   int
	Files    []FileStatus
}

func (s *Status) Clean() bool {
	return len(s.Files) == 0
}

// ParseStatus parses `git status --porcelain=v2 --branch` output.
func ParseStatus(out string) (*Status, error) {
	st := &Status{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		switch line[0] {
		case '#':
			if err := st.parseHeader(line); err != nil {
				return nil, err
			}
		case '1':
			parts := strings.SplitN(line, " ", 9)
			if len(parts) < 9 {
				return nil, fmt.Errorf("malformed status entry %q", line)
			}
			st.Files = append(st.Files, FileStatus{Path: unquote(parts[8]), XY: parts[1]})
		case '2':
			parts := strings.SplitN(line, " ", 10)
			if len(parts) < 10 {
				return nil, fmt.Errorf("malformed rename entry %q", line)
			}
			path, _, _ := strings.Cut(parts[9], "\t")
			st.Files = append(st.Files, FileStatus{Path: unquote(path), XY: parts[1]})
		case 'u':
			parts := strings.SplitN(line, " ", 11)
			if len(parts) < 11 {
				return nil, fmt.Errorf("malformed unmerged entry %q", line)
			}
			st.Files = append(st.Files, FileStatus{Path: unquote(parts[10]), XY: parts[1]})
		case '?':
			st.Files = append(st.Files, FileStatus{Path: unquote(strings.TrimPrefix(line, "? ")), XY: "??"})
		case '!':
		default:
			return nil, fmt.Errorf("unknown status entry %q", line)
		}
	}
	return st, scanner.Err()
}

func (s *Status) parseHeader(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil
	}
	switch fields[1] {
	case "branch.head":
		if fields[2] != "(detached)" {
			s.Branch = fields[2]
		}
	case "branch.upstream":
		s.Upstream = fields[2]
	case "branch.ab":
		if len(fields) < 4 {
			return fmt.Errorf("malformed branch.ab header %q", line)
		}
		ahead, err := strconv.Atoi(strings.TrimPrefix(fields[2], "+"))
		if err != nil {
			return fmt.Errorf("malformed ahead count %q: %w", fields[2], err)
		}
		behind, err := strconv.Atoi(strings.TrimPrefix(fields[3], "-"))
		if err != nil {
			return fmt.Errorf("malformed behind count %q: %w", fields[3], err)
		}
		s.Ahead, s.Behind = ahead, behind
	}
	return nil
}

func unquote(p string) string {
	if strings.HasPrefix(p, `"`) {
		if s, err := strconv.Unquote(p); err == nil {
			return s
		}
	}
	return p
}
