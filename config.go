package nbkey

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Binding describes a named action and the key it is bound to.
type Binding struct {
	Name       string // Semantic action name (e.g., "volume_up")
	Key        Key    // Current key (after rebinding)
	DefaultKey Key    // Original default key
	Bound      bool   // false after the key was unregistered
}

type namedBinding struct {
	defaultKey Key
	currentKey Key
	action     Action
	bound      bool
}

// Bind registers a under a semantic name so it can be rebound later, by
// Rebind or from a config file. Binding a name twice replaces the first.
func (d *Dispatcher) Bind(name string, k Key, a Action) {
	if old, ok := d.namedBindings[name]; ok {
		d.removeNamed(name, old.currentKey)
	} else {
		d.bindingOrder = append(d.bindingOrder, name)
	}
	d.namedBindings[name] = &namedBinding{
		defaultKey: k,
		currentKey: k,
		action:     a,
		bound:      true,
	}
	d.keymap[k] = append(d.keymap[k], binding{name: name, action: a})
}

// Rebind moves a named action to k. Other actions on either key are kept.
// Rebinding to the current key leaves its position unchanged.
// Returns true if the name is known.
func (d *Dispatcher) Rebind(name string, k Key) bool {
	nb, ok := d.namedBindings[name]
	if !ok {
		return false
	}
	if nb.bound && nb.currentKey == k {
		return true
	}
	if nb.bound {
		d.removeNamed(name, nb.currentKey)
	}
	nb.currentKey = k
	nb.bound = true
	d.keymap[k] = append(d.keymap[k], binding{name: name, action: nb.action})
	return true
}

// Reset restores a named action to its default key.
// Returns true if the binding was found and reset.
func (d *Dispatcher) Reset(name string) bool {
	nb, ok := d.namedBindings[name]
	if !ok {
		return false
	}
	if nb.bound && nb.currentKey == nb.defaultKey {
		return true
	}
	return d.Rebind(name, nb.defaultKey)
}

// ResetAll restores all named actions to their defaults.
func (d *Dispatcher) ResetAll() {
	for _, name := range d.bindingOrder {
		d.Reset(name)
	}
}

// Bindings returns all named bindings in registration order.
func (d *Dispatcher) Bindings() []Binding {
	bindings := make([]Binding, 0, len(d.bindingOrder))
	for _, name := range d.bindingOrder {
		if nb, ok := d.namedBindings[name]; ok {
			bindings = append(bindings, Binding{
				Name:       name,
				Key:        nb.currentKey,
				DefaultKey: nb.defaultKey,
				Bound:      nb.bound,
			})
		}
	}
	return bindings
}

// ApplyBindings rebinds named actions from a name -> key notation map.
// Unknown names are ignored. A malformed key returns an error and no
// binding is changed.
func (d *Dispatcher) ApplyBindings(bindings map[string]string) error {
	parsed, err := parseBindings(bindings)
	if err != nil {
		return err
	}
	d.rebindAll(parsed)
	return nil
}

type parsedBinding struct {
	name string
	key  Key
}

// parseBindings parses every entry in name order before anything is applied.
func parseBindings(bindings map[string]string) ([]parsedBinding, error) {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	parsed := make([]parsedBinding, 0, len(names))
	for _, name := range names {
		k, err := ParseKey(bindings[name])
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", name, err)
		}
		parsed = append(parsed, parsedBinding{name: name, key: k})
	}
	return parsed, nil
}

func (d *Dispatcher) rebindAll(parsed []parsedBinding) {
	for _, p := range parsed {
		d.Rebind(p.name, p.key)
	}
}

func (d *Dispatcher) removeNamed(name string, k Key) {
	bs := d.keymap[k]
	i := slices.IndexFunc(bs, func(b binding) bool { return b.name == name })
	if i < 0 {
		return
	}
	bs = slices.Delete(bs, i, i+1)
	if len(bs) == 0 {
		delete(d.keymap, k)
		return
	}
	d.keymap[k] = bs
}

// ConfigPath returns the default config file path.
// Respects XDG_CONFIG_HOME if set, otherwise uses ~/.config/nbkey.toml
func ConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "nbkey.toml")
}

// LoadBindings loads bindings from the shared config file.
// It merges: defaults → global section → app-specific section.
// Missing file or sections are silently ignored.
func (d *Dispatcher) LoadBindings(appName string) error {
	return d.LoadBindingsFrom(ConfigPath(), appName)
}

// LoadBindingsFrom loads bindings from a specific config file.
func (d *Dispatcher) LoadBindingsFrom(path, appName string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var raw map[string]map[string]string
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	global, err := parseBindings(raw["global"])
	if err != nil {
		return fmt.Errorf("%s [global]: %w", path, err)
	}
	var app []parsedBinding
	if appName != "" && appName != "global" {
		if app, err = parseBindings(raw[appName]); err != nil {
			return fmt.Errorf("%s [%s]: %w", path, appName, err)
		}
	}
	d.rebindAll(global)
	d.rebindAll(app)
	return nil
}

// WriteDefaultBindings writes a TOML config template with all bindings commented out.
func (d *Dispatcher) WriteDefaultBindings(w io.Writer, appName string) error {
	var sb strings.Builder

	sb.WriteString("[" + appName + "]\n")
	for _, b := range d.Bindings() {
		sb.WriteString("# " + b.Name + " = " + strconv.Quote(b.DefaultKey.String()) + "\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
