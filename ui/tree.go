package ui

import (
	"strings"
	"unicode/utf8"
)

// Tree hierarchy symbols using box drawing characters
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   "
	TreeIndent     = "    "

	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxVertical    = "│"
	BoxHorizontal  = "─"
	BoxTeeRight    = "├"
	BoxTeeLeft     = "┤"
)

// BuildTreePrefix returns the connector for a node at depth. parentIsLast
// tells for each ancestor below the root whether it was the last sibling.
func BuildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			sb.WriteString(TreeIndent)
		} else {
			sb.WriteString(TreeContinue)
		}
	}
	if isLast {
		sb.WriteString(TreeLastBranch)
	} else {
		sb.WriteString(TreeBranch)
	}
	return sb.String()
}

// BuildBoxHeader creates a box header with the given title and width
func BuildBoxHeader(title string, width int) string {
	titleLen := utf8.RuneCountInString(title)
	if width < titleLen+4 {
		width = titleLen + 4
	}
	padding := width - 4 - titleLen

	header := BoxTopLeft + strings.Repeat(BoxHorizontal, width-2) + BoxTopRight + "\n"
	header += BoxVertical + " " + title + strings.Repeat(" ", padding+1) + BoxVertical + "\n"
	header += BoxTeeRight + strings.Repeat(BoxHorizontal, width-2) + BoxTeeLeft + "\n"
	return header
}

// BuildBoxLine creates a content line within a box, truncating by runes
func BuildBoxLine(content string, width int) string {
	maxLen := width - 4
	if maxLen < 4 {
		maxLen = 4
	}
	runes := []rune(content)
	if len(runes) > maxLen {
		runes = append(runes[:maxLen-3], []rune("...")...)
	}
	padding := maxLen - len(runes)
	return BoxVertical + " " + string(runes) + strings.Repeat(" ", padding+1) + BoxVertical + "\n"
}

// BuildBoxFooter creates a box footer with the given width
func BuildBoxFooter(width int) string {
	if width < 2 {
		width = 2
	}
	return BoxBottomLeft + strings.Repeat(BoxHorizontal, width-2) + BoxBottomRight + "\n"
}
