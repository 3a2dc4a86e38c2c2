package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrShortStatus means the text has too few lines to be a status dump.
var ErrShortStatus = errors.New("report: not a status dump")

// Line positions inside a status dump. The console prints a fixed layout,
// so these indices are a contract with the server build.
const (
	lineMaxGames = iota
	lineCurMaxGames
	lineActiveGames
	linePlayers
	lineMaxPlayers
	lineMaxLife
	lineTotalGames
	lineD2CS
	lineD2DBS
	linePhysMem
	lineVirtMem
	lineKernelCPU
	lineUserCPU

	lineMOTD = 21
)

// ParseStatus parses the output of the "status" command. Unparseable
// integers become -1 and unparseable floats 0.
func ParseStatus(text string) (ServerStatus, error) {
	lines := splitLines(text)
	if len(lines) <= lineUserCPU {
		return ServerStatus{}, fmt.Errorf("%w: %d lines", ErrShortStatus, len(lines))
	}
	field := func(i int) string { return valueOf(lines[i]) }

	st := ServerStatus{
		Games: GamesStatus{
			Maximum:        atoi(field(lineMaxGames)),
			CurrentMaximum: atoi(field(lineCurMaxGames)),
			Active:         atoi(field(lineActiveGames)),
			Total:          atoi(field(lineTotalGames)),
			MaximumLife:    atoi(firstWord(field(lineMaxLife))),
		},
		Players: PlayersStatus{
			Maximum: atoi(field(lineMaxPlayers)),
			Current: atoi(field(linePlayers)),
		},
		Network: []NetworkStatus{
			{Name: "d2cs", Connected: strings.EqualFold(field(lineD2CS), "yes")},
			{Name: "d2dbs", Connected: strings.EqualFold(field(lineD2DBS), "yes")},
		},
		Memory: []MemoryStatus{
			memory("virtual", field(lineVirtMem)),
			memory("physical", field(linePhysMem)),
		},
		CPU: CPUStatus{
			Kernel: atof(strings.ReplaceAll(field(lineKernelCPU), "%", "")),
			User:   atof(strings.ReplaceAll(field(lineUserCPU), "%", "")),
		},
	}
	if len(lines) > lineMOTD {
		st.MOTD = strings.TrimSpace(lines[lineMOTD])
	}
	return st, nil
}

// memory parses "123/4096MB".
func memory(name, v string) MemoryStatus {
	cur, limit, _ := strings.Cut(strings.ReplaceAll(v, "MB", ""), "/")
	return MemoryStatus{Name: name, Current: atof(cur), Maximum: atof(limit)}
}

// splitLines splits on CR and LF and drops empty entries.
func splitLines(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' })
}

// valueOf returns the trimmed text after the first colon, or "" when the
// line has none.
func valueOf(line string) string {
	_, v, ok := strings.Cut(line, ":")
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func firstWord(s string) string {
	w, _, _ := strings.Cut(s, " ")
	return w
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
