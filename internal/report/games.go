package report

import "strings"

// column is one fixed-width field of a game row and the literal that follows
// it.
type column struct {
	width int
	after string
	valid func(rune) bool
}

func isDigit(r rune) bool     { return r >= '0' && r <= '9' }
func isDigitOrSp(r rune) bool { return r == ' ' || isDigit(r) }
func isClockChar(r rune) bool { return r == ':' || isDigitOrSp(r) }
func isPrintOrSp(r rune) bool { return r != '\t' && r != '\n' && r != '\f' && r != '\r' }

const gameRowPrefix = "| "

// gameColumns is the layout of one row of the game list:
//
//	| III  NNNNNNNNNNNNNNN  PPPPPPPPPPPPPPP  SSSS  TTTTTTT  HHHH  LLLLLLLLLLL DDDDDDDDDD CCCCC TTTTTTTTTT EEE |
var gameColumns = []column{
	{3, "  ", isDigit},      // id
	{15, "  ", isPrintOrSp}, // name
	{15, "  ", isPrintOrSp}, // password
	{4, "  ", isDigitOrSp},  // slot
	{7, "  ", isPrintOrSp},  // type
	{4, "  ", isPrintOrSp},  // hardcore
	{11, " ", isPrintOrSp},  // ladder
	{10, " ", isPrintOrSp},  // difficulty
	{5, " ", isDigitOrSp},   // characters
	{10, " ", isClockChar},  // created
	{3, " |", isPrintOrSp},  // enabled
}

const (
	colID = iota
	colName
	colPassword
	colSlot
	colType
	colHardcore
	colLadder
	colDifficulty
	colCharacters
	colCreated
	colEnabled
)

// ParseGames parses the output of the "gl" command. The first line is the
// table header and the last two lines are the footer; rows that do not match
// the layout are dropped.
func ParseGames(text string) []Game {
	lines := splitLines(text)
	games := []Game{}
	if len(lines) <= 1 {
		return games
	}
	end := len(lines) - 2
	for i := 1; i < end; i++ {
		if g, ok := ParseGame(lines[i]); ok {
			games = append(games, g)
		}
	}
	return games
}

// ParseGame parses a single row. The row may be preceded by other text; the
// first "|" from which every column fits is used.
func ParseGame(row string) (Game, bool) {
	r := []rune(row)
	for i, ch := range r {
		if ch != '|' {
			continue
		}
		if f, ok := sliceColumns(r[i:]); ok {
			return gameFromColumns(f), true
		}
	}
	return Game{}, false
}

func sliceColumns(r []rune) ([]string, bool) {
	if !hasRunePrefix(r, gameRowPrefix) {
		return nil, false
	}
	pos := len(gameRowPrefix)
	fields := make([]string, 0, len(gameColumns))
	for _, c := range gameColumns {
		end := pos + c.width
		if end > len(r) {
			return nil, false
		}
		for _, ch := range r[pos:end] {
			if !c.valid(ch) {
				return nil, false
			}
		}
		fields = append(fields, strings.TrimSpace(string(r[pos:end])))
		if !hasRunePrefix(r[end:], c.after) {
			return nil, false
		}
		pos = end + len(c.after)
	}
	return fields, true
}

// hasRunePrefix compares against an ASCII literal.
func hasRunePrefix(r []rune, lit string) bool {
	if len(r) < len(lit) {
		return false
	}
	for i := 0; i < len(lit); i++ {
		if r[i] != rune(lit[i]) {
			return false
		}
	}
	return true
}

func gameFromColumns(f []string) Game {
	return Game{
		ID:         atoi(f[colID]),
		Name:       f[colName],
		Password:   f[colPassword],
		Expansion:  strings.EqualFold(f[colType], "exp"),
		Hardcore:   strings.EqualFold(f[colHardcore], "hc"),
		Ladder:     strings.EqualFold(f[colLadder], "ladder"),
		Difficulty: strings.ToLower(f[colDifficulty]),
		Characters: atoi(f[colCharacters]),
		Created:    f[colCreated],
		Enabled:    strings.EqualFold(f[colEnabled], "y"),
	}
}
