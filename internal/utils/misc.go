package utils

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

var BaseXtermAnsiColorNames = []string{
	"maroon",
	"green",
	"olive",
	"navy",
	"purple",
	"teal",
	"red",
	"lime",
	"yellow",
	"blue",
	"fuchsia",
	"aqua",
}

// ColorFor picks a stable display color for a username.
func ColorFor(username string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(username))
	return BaseXtermAnsiColorNames[h.Sum32()%uint32(len(BaseXtermAnsiColorNames))]
}

func Contains(s []string, v string) bool {
	return slices.Contains(s, v)
}

// ExpandHome resolves a leading "~" against the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~")), nil
}

func FormatPrettyTime(unixMicro int64) string {
	t := time.UnixMicro(unixMicro)
	now := time.Now()
	year, month, day := t.Date()
	nowYear, nowMonth, nowDay := now.Date()

	timePart := t.Format("15:04")

	if year == nowYear && month == nowMonth && day == nowDay {
		return fmt.Sprintf("Today %s", timePart)
	}

	yesterday := now.AddDate(0, 0, -1)
	if year == yesterday.Year() && month == yesterday.Month() && day == yesterday.Day() {
		return fmt.Sprintf("Yesterday %s", timePart)
	}

	if year == nowYear {
		return fmt.Sprintf("%s %d %s", t.Format("Jan"), day, timePart)
	}

	return fmt.Sprintf("%d %s %02d %s", year, t.Format("Jan"), day, timePart)
}
