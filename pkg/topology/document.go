package topology

import (
	"encoding/json"
	"fmt"
)

// Document is a SCION topology file. Only the local IA and the border
// routers are interpreted; every other section is carried through writes
// untouched.
type Document struct {
	IsdAs         string
	BorderRouters map[string]*BorderRouter
	extra         map[string]json.RawMessage
}

// BorderRouter is one router entry. Unknown fields are preserved.
type BorderRouter struct {
	InternalAddr string
	Interfaces   map[string]*Interface
	extra        map[string]json.RawMessage
}

// Interface is a single inter-domain link of a border router.
type Interface struct {
	Underlay Underlay `json:"underlay"`
	IsdAs    string   `json:"isd_as"`
	LinkTo   string   `json:"link_to"`
	MTU      int32    `json:"mtu"`
}

// Underlay is the address pair of an interface.
type Underlay struct {
	Public string `json:"public"`
	Remote string `json:"remote"`
}

// UnmarshalJSON decodes the known fields and keeps the rest raw.
func (d *Document) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["isd_as"]; ok {
		if err := json.Unmarshal(v, &d.IsdAs); err != nil {
			return fmt.Errorf("parsing isd_as: %s", err)
		}
		delete(raw, "isd_as")
	}
	if v, ok := raw["border_routers"]; ok {
		if err := json.Unmarshal(v, &d.BorderRouters); err != nil {
			return fmt.Errorf("parsing border_routers: %s", err)
		}
		delete(raw, "border_routers")
	}
	d.extra = raw
	return nil
}

// MarshalJSON re-assembles the document, merging the untouched sections.
func (d *Document) MarshalJSON() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(d.extra)+2)
	for k, v := range d.extra {
		raw[k] = v
	}
	var err error
	if raw["isd_as"], err = json.Marshal(d.IsdAs); err != nil {
		return nil, err
	}
	if raw["border_routers"], err = json.Marshal(d.BorderRouters); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes the known fields and keeps the rest raw.
func (b *BorderRouter) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["internal_addr"]; ok {
		if err := json.Unmarshal(v, &b.InternalAddr); err != nil {
			return fmt.Errorf("parsing internal_addr: %s", err)
		}
		delete(raw, "internal_addr")
	}
	if v, ok := raw["interfaces"]; ok {
		if err := json.Unmarshal(v, &b.Interfaces); err != nil {
			return fmt.Errorf("parsing interfaces: %s", err)
		}
		delete(raw, "interfaces")
	}
	b.extra = raw
	return nil
}

// MarshalJSON re-assembles the router entry.
func (b *BorderRouter) MarshalJSON() ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(b.extra)+2)
	for k, v := range b.extra {
		raw[k] = v
	}
	var err error
	if raw["internal_addr"], err = json.Marshal(b.InternalAddr); err != nil {
		return nil, err
	}
	if b.Interfaces == nil {
		b.Interfaces = map[string]*Interface{}
	}
	if raw["interfaces"], err = json.Marshal(b.Interfaces); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}
