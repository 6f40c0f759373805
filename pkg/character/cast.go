package character

import "fmt"

// Cast is the set of characters in the scene.
type Cast struct {
	order  []*Character
	byName map[string]*Character
}

// NewCast builds a cast. Names must be unique.
func NewCast(chars ...*Character) (*Cast, error) {
	c := &Cast{byName: make(map[string]*Character, len(chars))}
	for _, ch := range chars {
		if _, dup := c.byName[ch.Name()]; dup {
			return nil, fmt.Errorf("character %q defined twice", ch.Name())
		}
		c.byName[ch.Name()] = ch
		c.order = append(c.order, ch)
	}
	return c, nil
}

// Get returns the character with the exact name.
func (c *Cast) Get(name string) (*Character, bool) {
	ch, ok := c.byName[name]
	return ch, ok
}

// All returns every character in configuration order.
func (c *Cast) All() []*Character {
	return append([]*Character(nil), c.order...)
}

// Len returns the number of characters.
func (c *Cast) Len() int {
	return len(c.order)
}

// Others returns every character except ch.
func (c *Cast) Others(ch *Character) []*Character {
	out := make([]*Character, 0, len(c.order))
	for _, o := range c.order {
		if o != ch {
			out = append(out, o)
		}
	}
	return out
}

// Partners returns ch's scene partners. Without an explicit list every
// other character is a partner. Configured names missing from the cast are
// skipped.
func (c *Cast) Partners(ch *Character) []*Character {
	names := ch.Config().ScenePartners
	if len(names) == 0 {
		return c.Others(ch)
	}
	out := make([]*Character, 0, len(names))
	for _, n := range names {
		if p, ok := c.byName[n]; ok && p != ch {
			out = append(out, p)
		}
	}
	return out
}

// Partner looks up one of ch's scene partners by name or display name.
// Matching is exact and case-sensitive.
func (c *Cast) Partner(ch *Character, name string) (*Character, bool) {
	for _, p := range c.Partners(ch) {
		if p.Name() == name || p.DisplayName() == name {
			return p, true
		}
	}
	return nil, false
}

// MissingPartners lists configured partner names that are not in the cast.
func (c *Cast) MissingPartners(ch *Character) []string {
	var missing []string
	for _, n := range ch.Config().ScenePartners {
		if _, ok := c.byName[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}
