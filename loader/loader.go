// Package loader reads Lua campaign content into immutable definitions.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/nathoo/lorecore/engine/state"
)

// rawDef is one curried constructor call, e.g. Node "gate" { ... }.
type rawDef struct {
	id    string
	table *lua.LTable
	order int
}

// collector accumulates Lua definitions while the campaign files run.
type collector struct {
	campaign   *lua.LTable
	nodes      []rawDef
	characters []rawDef
	triggers   []rawDef
	cascades   []rawDef
	hints      []rawDef
	chains     []rawDef
	events     []rawDef
	order      int
}

func (c *collector) nextSourceOrder() int {
	c.order++
	return c.order
}

// Load runs every .lua file in dir, compiles the collected definitions and
// validates their references. Warnings describe content that loads but
// will never behave as authored, such as an undecodable condition. The Lua
// VM is discarded before Load returns.
func Load(dir string) (*state.Defs, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading campaign directory %s: %w", dir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			luaFiles = append(luaFiles, e.Name())
		}
	}
	if len(luaFiles) == 0 {
		return nil, nil, fmt.Errorf("no .lua files found in %s", dir)
	}

	L := newVM()
	defer L.Close()
	coll := &collector{}
	registerAPI(L, coll)

	for _, f := range sortedLuaFiles(luaFiles) {
		if err := L.DoFile(filepath.Join(dir, f)); err != nil {
			return nil, nil, fmt.Errorf("executing %s: %w", f, err)
		}
	}

	defs, err := compile(coll, filepath.Base(filepath.Clean(dir)))
	if err != nil {
		return nil, nil, fmt.Errorf("compiling campaign: %w", err)
	}
	warnings, err := validate(defs)
	if err != nil {
		return nil, warnings, err
	}
	return defs, warnings, nil
}

// LoadString compiles a single chunk of campaign source. The campaign id
// defaults to fallbackID when the Campaign table has none.
func LoadString(src, fallbackID string) (*state.Defs, []string, error) {
	L := newVM()
	defer L.Close()
	coll := &collector{}
	registerAPI(L, coll)
	if err := L.DoString(src); err != nil {
		return nil, nil, fmt.Errorf("executing campaign source: %w", err)
	}
	defs, err := compile(coll, fallbackID)
	if err != nil {
		return nil, nil, fmt.Errorf("compiling campaign: %w", err)
	}
	warnings, err := validate(defs)
	if err != nil {
		return nil, warnings, err
	}
	return defs, warnings, nil
}

func newVM() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibs(L)
	sandbox(L)
	return L
}

// openSafeLibs opens base, table, string and math only.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes globals that reach the filesystem or bypass metatables.
func sandbox(L *lua.LState) {
	for _, name := range []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage", "require", "module",
	} {
		L.SetGlobal(name, lua.LNil)
	}

	// Content must not reseed: random rolls belong to the engine's roller.
	if tbl, ok := L.GetGlobal("math").(*lua.LTable); ok {
		tbl.RawSetString("randomseed", lua.LNil)
		tbl.RawSetString("random", lua.LNil)
	}
}
