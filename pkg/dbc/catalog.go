// Package dbc loads DBC files into a catalog used to name and decode frames.
package dbc

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
	cdbc "go.einride.tech/can/pkg/dbc"
	"go.einride.tech/can/pkg/descriptor"
)

// Catalog is a compiled DBC database.
type Catalog struct {
	db *descriptor.Database
	// metadata definitions that referenced undeclared messages or signals
	warnings []error
}

// ParseFile reads and compiles the DBC file at path.
func ParseFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read dbc file")
	}
	return Parse(filepath.Base(path), data)
}

// Parse compiles DBC source. name is only used in parse error messages.
func Parse(name string, data []byte) (*Catalog, error) {
	p := cdbc.NewParser(name, data)
	if err := p.Parse(); err != nil {
		return nil, errors.Wrap(err, "parse dbc")
	}
	c := &Catalog{db: &descriptor.Database{SourceFile: name}}
	defs := p.Defs()
	c.collect(defs)
	c.annotate(defs)
	c.sort()
	return c, nil
}

// Name returns the message name for a CAN id without flag bits.
func (c *Catalog) Name(id uint32) (string, bool) {
	m, ok := c.db.Message(id)
	if !ok {
		return "", false
	}
	return m.Name, true
}

// Message returns the message descriptor for id.
func (c *Catalog) Message(id uint32) (*descriptor.Message, bool) {
	return c.db.Message(id)
}

// Len returns the number of messages in the catalog.
func (c *Catalog) Len() int { return len(c.db.Messages) }

// Version is the VERSION string of the DBC file.
func (c *Catalog) Version() string { return c.db.Version }

// Nodes returns the network node names declared in BU_.
func (c *Catalog) Nodes() []string {
	names := make([]string, 0, len(c.db.Nodes))
	for _, n := range c.db.Nodes {
		names = append(names, n.Name)
	}
	return names
}

// Warnings lists metadata definitions that were ignored.
func (c *Catalog) Warnings() []error { return c.warnings }

// collect builds the message, signal and node descriptors. Metadata that
// refers back to them is applied afterwards by annotate.
// ref: https://github.com/einride/can-go/blob/master/internal/generate/compile.go
func (c *Catalog) collect(defs []cdbc.Def) {
	for _, def := range defs {
		switch def := def.(type) {
		case *cdbc.VersionDef:
			c.db.Version = def.Version
		case *cdbc.NodesDef:
			for _, n := range def.NodeNames {
				c.db.Nodes = append(c.db.Nodes, &descriptor.Node{Name: string(n)})
			}
		case *cdbc.MessageDef:
			// pseudo message holding signals not bound to any frame
			if def.MessageID != cdbc.IndependentSignalsMessageID {
				c.db.Messages = append(c.db.Messages, newMessage(def))
			}
		}
	}
}

func newMessage(def *cdbc.MessageDef) *descriptor.Message {
	m := &descriptor.Message{
		Name:       string(def.Name),
		ID:         def.MessageID.ToCAN(),
		IsExtended: def.MessageID.IsExtended(),
		Length:     uint8(def.Size),
		SenderNode: string(def.Transmitter),
		Signals:    make([]*descriptor.Signal, 0, len(def.Signals)),
	}
	for _, sd := range def.Signals {
		m.Signals = append(m.Signals, newSignal(sd))
	}
	return m
}

func newSignal(sd cdbc.SignalDef) *descriptor.Signal {
	receivers := make([]string, 0, len(sd.Receivers))
	for _, r := range sd.Receivers {
		receivers = append(receivers, string(r))
	}
	return &descriptor.Signal{
		Name:             string(sd.Name),
		Start:            uint8(sd.StartBit),
		Length:           uint8(sd.Size),
		IsBigEndian:      sd.IsBigEndian,
		IsSigned:         sd.IsSigned,
		IsMultiplexer:    sd.IsMultiplexerSwitch,
		IsMultiplexed:    sd.IsMultiplexed,
		MultiplexerValue: uint(sd.MultiplexerSwitch),
		Scale:            sd.Factor,
		Offset:           sd.Offset,
		Min:              sd.Minimum,
		Max:              sd.Maximum,
		Unit:             sd.Unit,
		ReceiverNodes:    receivers,
	}
}

func (c *Catalog) annotate(defs []cdbc.Def) {
	for _, def := range defs {
		switch def := def.(type) {
		case *cdbc.SignalValueTypeDef:
			s, ok := c.db.Signal(def.MessageID.ToCAN(), string(def.SignalName))
			if !ok {
				c.warnf("no declared signal %s in 0x%X", def.SignalName, def.MessageID.ToCAN())
				continue
			}
			switch def.SignalValueType {
			case cdbc.SignalValueTypeInt:
				s.IsFloat = false
			case cdbc.SignalValueTypeFloat32:
				if s.Length != 32 {
					c.warnf("float signal %s has length %d", s.Name, s.Length)
					continue
				}
				s.IsFloat = true
			default:
				c.warnf("unsupported value type %v for signal %s", def.SignalValueType, s.Name)
			}
		case *cdbc.CommentDef:
			if def.MessageID == cdbc.IndependentSignalsMessageID {
				continue
			}
			switch def.ObjectType {
			case cdbc.ObjectTypeMessage:
				m, ok := c.db.Message(def.MessageID.ToCAN())
				if !ok {
					c.warnf("no declared message 0x%X", def.MessageID.ToCAN())
					continue
				}
				m.Description = def.Comment
			case cdbc.ObjectTypeSignal:
				s, ok := c.db.Signal(def.MessageID.ToCAN(), string(def.SignalName))
				if !ok {
					c.warnf("no declared signal %s in 0x%X", def.SignalName, def.MessageID.ToCAN())
					continue
				}
				s.Description = def.Comment
			}
		case *cdbc.ValueDescriptionsDef:
			if def.MessageID == cdbc.IndependentSignalsMessageID || def.ObjectType != cdbc.ObjectTypeSignal {
				continue
			}
			s, ok := c.db.Signal(def.MessageID.ToCAN(), string(def.SignalName))
			if !ok {
				c.warnf("no declared signal %s in 0x%X", def.SignalName, def.MessageID.ToCAN())
				continue
			}
			for _, vd := range def.ValueDescriptions {
				s.ValueDescriptions = append(s.ValueDescriptions, &descriptor.ValueDescription{
					Description: vd.Description,
					Value:       int64(vd.Value),
				})
			}
		}
	}
}

func (c *Catalog) sort() {
	sort.Slice(c.db.Messages, func(i, j int) bool {
		return c.db.Messages[i].ID < c.db.Messages[j].ID
	})
	for _, m := range c.db.Messages {
		sort.SliceStable(m.Signals, func(i, j int) bool {
			return m.Signals[i].Start < m.Signals[j].Start
		})
	}
}

func (c *Catalog) warnf(format string, args ...any) {
	c.warnings = append(c.warnings, errors.Newf(format, args...))
}
