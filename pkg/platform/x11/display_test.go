package x11

import (
	"testing"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
)

func TestKeysymFor(t *testing.T) {
	assert.Equal(t, xproto.Keysym('a'), keysymFor('a'))
	assert.Equal(t, xproto.Keysym('A'), keysymFor('A'))
	assert.Equal(t, xproto.Keysym(' '), keysymFor(' '))
	assert.Equal(t, xproto.Keysym(0xe9), keysymFor('é'))
	assert.Equal(t, keysymReturn, keysymFor('\n'))
	assert.Equal(t, keysymTab, keysymFor('\t'))
	assert.Equal(t, xproto.Keysym(0x010020ac), keysymFor('€'))
}

func TestBuildKeymap(t *testing.T) {
	// Two keysyms per keycode: keycode 10 = a/A, 11 = 1/!, 12 = Shift_L, 13 = a (duplicate).
	keysyms := []xproto.Keysym{
		'a', 'A',
		'1', '!',
		keysymShiftL, 0,
		'a', 0,
	}
	keymap := buildKeymap(10, 2, keysyms)

	assert.Equal(t, keyEntry{code: 10}, keymap['a'], "first keycode wins")
	assert.Equal(t, keyEntry{code: 10, shift: true}, keymap['A'])
	assert.Equal(t, keyEntry{code: 11, shift: true}, keymap['!'])
	assert.Equal(t, keyEntry{code: 12}, keymap[keysymShiftL])
	_, ok := keymap[0]
	assert.False(t, ok, "NoSymbol is never indexed")
}

func TestBuildKeymap_IgnoresHigherLevels(t *testing.T) {
	keysyms := []xproto.Keysym{'e', 'E', 0xe9, 0xc9}
	keymap := buildKeymap(8, 4, keysyms)

	assert.Len(t, keymap, 2)
	assert.Empty(t, buildKeymap(8, 0, keysyms))
}
