// Package key defines the key chord value type shared by the client,
// the server, and the mode configuration.
//
// A chord is parsed from a human-readable string such as "ctrl+shift+p"
// and formatted back into a canonical form, so chords can be used as map
// keys and wire identifiers without ambiguity.
package key

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Modifiers is a bitmask of modifier keys held as part of a chord.
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModAlt
	ModShift
	ModSuper
)

// Has reports whether all modifiers in m are set.
func (m Modifiers) Has(mod Modifiers) bool {
	return m&mod == mod
}

// Code identifies the non-modifier key of a chord.
type Code uint8

const (
	CodeInvalid Code = iota

	// Letters
	CodeA
	CodeB
	CodeC
	CodeD
	CodeE
	CodeF
	CodeG
	CodeH
	CodeI
	CodeJ
	CodeK
	CodeL
	CodeM
	CodeN
	CodeO
	CodeP
	CodeQ
	CodeR
	CodeS
	CodeT
	CodeU
	CodeV
	CodeW
	CodeX
	CodeY
	CodeZ

	// Digits
	CodeDigit0
	CodeDigit1
	CodeDigit2
	CodeDigit3
	CodeDigit4
	CodeDigit5
	CodeDigit6
	CodeDigit7
	CodeDigit8
	CodeDigit9

	// Function keys
	CodeF1
	CodeF2
	CodeF3
	CodeF4
	CodeF5
	CodeF6
	CodeF7
	CodeF8
	CodeF9
	CodeF10
	CodeF11
	CodeF12

	// Special keys
	CodeEscape
	CodeSpace
	CodeEnter
	CodeTab
	CodeBackspace
	CodeDelete
	CodeInsert
	CodeHome
	CodeEnd
	CodePageUp
	CodePageDown

	// Arrows
	CodeLeft
	CodeRight
	CodeUp
	CodeDown

	// Punctuation
	CodeMinus
	CodeEqual
	CodeBracketLeft
	CodeBracketRight
	CodeBackslash
	CodeSemicolon
	CodeQuote
	CodeComma
	CodePeriod
	CodeSlash
	CodeBackquote
)

// codeNames maps each Code to its canonical string form.
var codeNames = map[Code]string{
	CodeA: "a", CodeB: "b", CodeC: "c", CodeD: "d", CodeE: "e",
	CodeF: "f", CodeG: "g", CodeH: "h", CodeI: "i", CodeJ: "j",
	CodeK: "k", CodeL: "l", CodeM: "m", CodeN: "n", CodeO: "o",
	CodeP: "p", CodeQ: "q", CodeR: "r", CodeS: "s", CodeT: "t",
	CodeU: "u", CodeV: "v", CodeW: "w", CodeX: "x", CodeY: "y",
	CodeZ: "z",

	CodeDigit0: "0", CodeDigit1: "1", CodeDigit2: "2", CodeDigit3: "3",
	CodeDigit4: "4", CodeDigit5: "5", CodeDigit6: "6", CodeDigit7: "7",
	CodeDigit8: "8", CodeDigit9: "9",

	CodeF1: "f1", CodeF2: "f2", CodeF3: "f3", CodeF4: "f4",
	CodeF5: "f5", CodeF6: "f6", CodeF7: "f7", CodeF8: "f8",
	CodeF9: "f9", CodeF10: "f10", CodeF11: "f11", CodeF12: "f12",

	CodeEscape:    "escape",
	CodeSpace:     "space",
	CodeEnter:     "enter",
	CodeTab:       "tab",
	CodeBackspace: "backspace",
	CodeDelete:    "delete",
	CodeInsert:    "insert",
	CodeHome:      "home",
	CodeEnd:       "end",
	CodePageUp:    "pageup",
	CodePageDown:  "pagedown",

	CodeLeft:  "left",
	CodeRight: "right",
	CodeUp:    "up",
	CodeDown:  "down",

	CodeMinus:        "minus",
	CodeEqual:        "equal",
	CodeBracketLeft:  "bracketleft",
	CodeBracketRight: "bracketright",
	CodeBackslash:    "backslash",
	CodeSemicolon:    "semicolon",
	CodeQuote:        "quote",
	CodeComma:        "comma",
	CodePeriod:       "period",
	CodeSlash:        "slash",
	CodeBackquote:    "backquote",
}

// codeAliases maps every accepted spelling, canonical or not, to its Code.
// Built from codeNames at init, then extended with alternates.
var codeAliases = func() map[string]Code {
	m := make(map[string]Code, len(codeNames)*2)
	for code, name := range codeNames {
		m[name] = code
	}
	for alias, code := range map[string]Code{
		"digit0": CodeDigit0, "digit1": CodeDigit1, "digit2": CodeDigit2,
		"digit3": CodeDigit3, "digit4": CodeDigit4, "digit5": CodeDigit5,
		"digit6": CodeDigit6, "digit7": CodeDigit7, "digit8": CodeDigit8,
		"digit9": CodeDigit9,

		"esc":    CodeEscape,
		" ":      CodeSpace,
		"return": CodeEnter,
		"del":    CodeDelete,
		"ins":    CodeInsert,

		"page_up": CodePageUp, "pgup": CodePageUp,
		"page_down": CodePageDown, "pgdn": CodePageDown,

		"arrowleft":  CodeLeft,
		"arrowright": CodeRight,
		"arrowup":    CodeUp,
		"arrowdown":  CodeDown,

		"-":            CodeMinus,
		"equals":       CodeEqual,
		"=":            CodeEqual,
		"bracket_left": CodeBracketLeft, "[": CodeBracketLeft,
		"bracket_right": CodeBracketRight, "]": CodeBracketRight,
		"\\": CodeBackslash,
		";":  CodeSemicolon,
		"'":  CodeQuote,
		",":  CodeComma,
		".":  CodePeriod,
		"/":  CodeSlash,
		"grave": CodeBackquote, "`": CodeBackquote,
	} {
		m[alias] = code
	}
	return m
}()

// String returns the canonical name for the code, or "unknown" for
// codes outside the defined set.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// Spec is a fully specified key chord: a base key plus modifiers.
// The zero value is not a valid chord.
type Spec struct {
	Mods Modifiers
	Code Code
}

// New returns a Spec for the given code and modifiers.
func New(code Code, mods Modifiers) Spec {
	return Spec{Mods: mods, Code: code}
}

// Parse parses a chord from a string such as "a", "ctrl+a" or
// "cmd+shift+n". Modifier names are case-insensitive and accept common
// alternates (control, option, command, super, win, windows, meta).
func Parse(s string) (Spec, error) {
	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	// The last part is the base key, everything before it is a modifier.
	keyPart := parts[len(parts)-1]
	modParts := parts[:len(parts)-1]

	code, ok := codeAliases[strings.ToLower(keyPart)]
	if !ok {
		return Spec{}, fmt.Errorf("unknown key code: %q", keyPart)
	}

	var mods Modifiers
	for _, part := range modParts {
		switch strings.ToLower(part) {
		case "ctrl", "control":
			mods |= ModCtrl
		case "alt", "option":
			mods |= ModAlt
		case "shift":
			mods |= ModShift
		case "cmd", "command", "super", "win", "windows", "meta":
			mods |= ModSuper
		default:
			return Spec{}, fmt.Errorf("unknown modifier: %q", part)
		}
	}

	return Spec{Mods: mods, Code: code}, nil
}

// String returns the canonical form of the chord. Modifiers are emitted
// in a fixed order (ctrl, alt, shift, cmd) so Parse(s.String()) == s for
// every valid Spec.
func (s Spec) String() string {
	var parts []string
	if s.Mods.Has(ModCtrl) {
		parts = append(parts, "ctrl")
	}
	if s.Mods.Has(ModAlt) {
		parts = append(parts, "alt")
	}
	if s.Mods.Has(ModShift) {
		parts = append(parts, "shift")
	}
	if s.Mods.Has(ModSuper) {
		parts = append(parts, "cmd")
	}
	parts = append(parts, s.Code.String())
	return strings.Join(parts, "+")
}

// MarshalText implements encoding.TextMarshaler. Specs serialize as their
// canonical string in both JSON and YAML, and work as map keys.
func (s Spec) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Spec) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s Spec) MarshalYAML() (any, error) {
	return s.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
