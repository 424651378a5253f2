package editor

import (
	"unicode/utf8"

	"storysync/internal/diff"
)

// rebase replays the edit that turned base into edited on top of current,
// which was also derived from base. Both sides are reduced to one op with
// diff.Extract. Text inserted on the current side is never removed by the
// replayed edit.
func rebase(base, edited, current string) string {
	local := diff.Extract(base, edited)
	remote := diff.Extract(base, current)
	return diff.Apply(current, transform(local, remote))
}

// transform moves local so it applies after remote.
func transform(local, remote diff.Op) diff.Op {
	switch remote.Kind {
	case diff.Insert:
		n := utf8.RuneCountInString(remote.Text)
		switch local.Kind {
		case diff.Insert:
			if remote.Index <= local.Index {
				local.Index += n
			}
		case diff.Delete:
			switch {
			case remote.Index <= local.Index:
				local.Index += n
			case remote.Index < local.Index+local.Length:
				// keep the remote text; delete only what precedes it
				local.Length = remote.Index - local.Index
			}
		}

	case diff.Delete:
		from, to := remote.Index, remote.Index+remote.Length
		shift := func(x int) int {
			switch {
			case x <= from:
				return x
			case x <= to:
				return from
			default:
				return x - remote.Length
			}
		}
		switch local.Kind {
		case diff.Insert:
			local.Index = shift(local.Index)
		case diff.Delete:
			start, end := shift(local.Index), shift(local.Index+local.Length)
			local.Index, local.Length = start, end-start
			if local.Length == 0 {
				return diff.Op{Kind: diff.None}
			}
		}
	}
	return local
}
