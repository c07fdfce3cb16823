// Package keymap maps the host framework's logical key names to the characters they type
// on the French keyboard layout the syllable inventory is recorded for.
package keymap

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrUnknownKey indicates that a key name is not a known logical key.
var ErrUnknownKey = errors.New("unknown key")

// KeyCode is a logical key identifier such as "A", "Key2" or "Escape".
type KeyCode string

// Keys that commonly appear in tests and frontends.
const (
	KeyA      KeyCode = "A"
	KeyEscape KeyCode = "Escape"
	KeySpace  KeyCode = "Space"
	KeyReturn KeyCode = "Return"
	KeyBack   KeyCode = "Back"
)

// keyText holds the text typed by every key that produces one. Letters are stored
// uppercase, matching their key names; Char lowercases.
var keyText = map[KeyCode]string{
	"Key2":    "é",
	"Key7":    "è",
	"Key9":    "ç",
	"A":       "A",
	"B":       "B",
	"C":       "C",
	"D":       "D",
	"E":       "E",
	"F":       "F",
	"G":       "G",
	"H":       "H",
	"I":       "I",
	"J":       "J",
	"K":       "K",
	"L":       "L",
	"M":       "M",
	"N":       "N",
	"O":       "O",
	"P":       "P",
	"Q":       "Q",
	"R":       "R",
	"S":       "S",
	"T":       "T",
	"U":       "U",
	"V":       "V",
	"W":       "W",
	"X":       "X",
	"Y":       "Y",
	"Z":       "Z",
	"Numpad0": "0",
	"Numpad1": "1",
	"Numpad2": "2",
	"Numpad3": "3",
	"Numpad4": "4",
	"Numpad5": "5",
	"Numpad6": "6",
	"Numpad7": "7",
	"Numpad8": "8",
	"Numpad9": "9",
}

var knownKeys = map[KeyCode]struct{}{
	"Key1":             {},
	"Key2":             {},
	"Key3":             {},
	"Key4":             {},
	"Key5":             {},
	"Key6":             {},
	"Key7":             {},
	"Key8":             {},
	"Key9":             {},
	"Key0":             {},
	"A":                {},
	"B":                {},
	"C":                {},
	"D":                {},
	"E":                {},
	"F":                {},
	"G":                {},
	"H":                {},
	"I":                {},
	"J":                {},
	"K":                {},
	"L":                {},
	"M":                {},
	"N":                {},
	"O":                {},
	"P":                {},
	"Q":                {},
	"R":                {},
	"S":                {},
	"T":                {},
	"U":                {},
	"V":                {},
	"W":                {},
	"X":                {},
	"Y":                {},
	"Z":                {},
	"Escape":           {},
	"F1":               {},
	"F2":               {},
	"F3":               {},
	"F4":               {},
	"F5":               {},
	"F6":               {},
	"F7":               {},
	"F8":               {},
	"F9":               {},
	"F10":              {},
	"F11":              {},
	"F12":              {},
	"F13":              {},
	"F14":              {},
	"F15":              {},
	"F16":              {},
	"F17":              {},
	"F18":              {},
	"F19":              {},
	"F20":              {},
	"F21":              {},
	"F22":              {},
	"F23":              {},
	"F24":              {},
	"Snapshot":         {},
	"Scroll":           {},
	"Pause":            {},
	"Insert":           {},
	"Home":             {},
	"Delete":           {},
	"End":              {},
	"PageDown":         {},
	"PageUp":           {},
	"Left":             {},
	"Up":               {},
	"Right":            {},
	"Down":             {},
	"Back":             {},
	"Return":           {},
	"Space":            {},
	"Compose":          {},
	"Caret":            {},
	"Numlock":          {},
	"Numpad0":          {},
	"Numpad1":          {},
	"Numpad2":          {},
	"Numpad3":          {},
	"Numpad4":          {},
	"Numpad5":          {},
	"Numpad6":          {},
	"Numpad7":          {},
	"Numpad8":          {},
	"Numpad9":          {},
	"AbntC1":           {},
	"AbntC2":           {},
	"NumpadAdd":        {},
	"Apostrophe":       {},
	"Apps":             {},
	"At":               {},
	"Ax":               {},
	"Backslash":        {},
	"Calculator":       {},
	"Capital":          {},
	"Colon":            {},
	"Comma":            {},
	"Convert":          {},
	"NumpadDecimal":    {},
	"NumpadDivide":     {},
	"Equals":           {},
	"Grave":            {},
	"Kana":             {},
	"Kanji":            {},
	"LAlt":             {},
	"LBracket":         {},
	"LControl":         {},
	"LShift":           {},
	"LWin":             {},
	"Mail":             {},
	"MediaSelect":      {},
	"MediaStop":        {},
	"Minus":            {},
	"NumpadMultiply":   {},
	"Mute":             {},
	"MyComputer":       {},
	"NavigateForward":  {},
	"NavigateBackward": {},
	"NextTrack":        {},
	"NoConvert":        {},
	"NumpadComma":      {},
	"NumpadEnter":      {},
	"NumpadEquals":     {},
	"Oem102":           {},
	"Period":           {},
	"PlayPause":        {},
	"Power":            {},
	"PrevTrack":        {},
	"RAlt":             {},
	"RBracket":         {},
	"RControl":         {},
	"RShift":           {},
	"RWin":             {},
	"Semicolon":        {},
	"Slash":            {},
	"Sleep":            {},
	"Stop":             {},
	"NumpadSubtract":   {},
	"Sysrq":            {},
	"Tab":              {},
	"Underline":        {},
	"Unlabeled":        {},
	"VolumeDown":       {},
	"VolumeUp":         {},
	"Wake":             {},
	"WebBack":          {},
	"WebFavorites":     {},
	"WebForward":       {},
	"WebHome":          {},
	"WebRefresh":       {},
	"WebSearch":        {},
	"WebStop":          {},
	"Yen":              {},
	"Copy":             {},
	"Paste":            {},
	"Cut":              {},
}

// Parse validates a logical key name.
func Parse(name string) (KeyCode, error) {
	key := KeyCode(name)
	if _, ok := knownKeys[key]; !ok {
		return "", fmt.Errorf("%w: '%s'", ErrUnknownKey, name)
	}

	return key, nil
}

// charKeys is the inverse of keyText, keyed by the lowercase character.
var charKeys = invert(keyText)

// invert maps every lowercase character in table to the key typing it. When several keys
// type the same character the lexically smallest key name wins, so the result never
// depends on map iteration order.
func invert(table map[KeyCode]string) map[rune]KeyCode {
	inverse := make(map[rune]KeyCode, len(table))

	for key := range table {
		char := lowerChar(table[key])

		current, exists := inverse[char]
		if !exists || key < current {
			inverse[char] = key
		}
	}

	return inverse
}

func lowerChar(text string) rune {
	char, _ := utf8.DecodeRuneInString(strings.ToLower(text))

	return char
}

// Mapper implements the key-to-character mapping.
type Mapper struct{}

// NewMapper returns the French layout mapper.
func NewMapper() Mapper {
	return Mapper{}
}

// Char returns the lowercase character typed by key, or false for keys that type nothing.
func (Mapper) Char(key KeyCode) (rune, bool) {
	text, ok := keyText[key]
	if !ok {
		return 0, false
	}

	return lowerChar(text), true
}

// KeyFor returns the key typing char, the inverse of Char. Letters match in either case.
// It lets a text frontend replay a string as key presses.
func KeyFor(char rune) (KeyCode, bool) {
	key, ok := charKeys[unicode.ToLower(char)]

	return key, ok
}
