package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", formatSize(0))
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "1.0 KB", formatSize(1024))
	assert.Equal(t, "1.5 MB", formatSize(3*1024*1024/2))
	assert.Equal(t, "2.0 GB", formatSize(2*1024*1024*1024))
	assert.Equal(t, "1.0 TB", formatSize(1024*1024*1024*1024))
	assert.Equal(t, "-", formatSize(-1))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "-", formatTime(time.Time{}))

	past := time.Date(2019, 3, 5, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "Mar  5  2019", formatTime(past))

	thisYear := time.Date(time.Now().Year(), 3, 5, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "Mar  5 10:30", formatTime(thisYear))
}

func TestPrintTable_Alignment(t *testing.T) {
	var sb strings.Builder

	printTable(&sb, []string{"NAME", "SIZE"}, [][]string{
		{"a.txt", "12 B"},
		{"longer-name.txt", "1.0 KB"},
	})

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Equal(t, "NAME             SIZE", lines[0])
	assert.Equal(t, "a.txt            12 B", lines[1])
	assert.Equal(t, "longer-name.txt  1.0 KB", lines[2])
}

func TestSplitParentAndName(t *testing.T) {
	parent, name := splitParentAndName("foo/bar/baz")
	assert.Equal(t, "foo/bar", parent)
	assert.Equal(t, "baz", name)

	parent, name = splitParentAndName("/baz")
	assert.Empty(t, parent)
	assert.Equal(t, "baz", name)

	parent, name = splitParentAndName("/")
	assert.Empty(t, parent)
	assert.Empty(t, name)
}

func TestSplitRemotePath(t *testing.T) {
	assert.Nil(t, splitRemotePath("/"))
	assert.Nil(t, splitRemotePath(""))
	assert.Equal(t, []string{"docs", "q1"}, splitRemotePath("/docs/q1/"))
}
