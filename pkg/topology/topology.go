// Package topology splices purchased links into a SCION router topology
// document. All mutations happen under a cross-process advisory lock and
// are written back atomically as a single write.
package topology

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/esdx-scion/esdx/pkg/conversion"
	"github.com/esdx-scion/esdx/pkg/lockfile"
)

const (
	// DefaultMinPort is the lowest public port assigned to ESDX interfaces.
	DefaultMinPort = 50000
	// DefaultMaxPort is the highest public port assigned to ESDX interfaces.
	DefaultMaxPort = 51000
)

// Contract carries the fields of a marketplace contract the topology needs.
type Contract struct {
	SellerIAID string
	BuyerIAID  string
	BrAddress  string
	MTU        int32
	LinkTo     string
}

// RouterFunc maps the IP of a remote underlay to the IP of the local
// interface that reaches it.
type RouterFunc func(remote netip.Addr) (netip.Addr, error)

// Topology mutates one topology file. Operations on distinct files are
// independent; two handles on the same file serialize through the lock.
type Topology struct {
	topofile     string
	lock         *lockfile.Lock
	internalAddr string
	router       RouterFunc
	minPort      int
	maxPort      int
	log          zerolog.Logger
}

// Option tweaks a Topology.
type Option func(*Topology)

// WithRouter overrides the remote-IP to local-IP mapping. The default maps
// IPv4 peers to 127.0.0.1 and IPv6 peers to ::1.
func WithRouter(r RouterFunc) Option {
	return func(t *Topology) { t.router = r }
}

// WithPortRange overrides the public port range for new interfaces.
func WithPortRange(min, max int) Option {
	return func(t *Topology) { t.minPort, t.maxPort = min, max }
}

// WithLockRetry overrides the lock acquisition retry policy.
func WithLockRetry(attempts int, sleep time.Duration) Option {
	return func(t *Topology) { t.lock = lockfile.New(t.topofile, attempts, sleep) }
}

// New creates a handle on a topology file. internalAddr is the internal
// address the ESDX border router will use if it has to be created; it must
// not collide with the internal address of any non-ESDX router already in
// the document.
func New(topofile string, internalAddr string, opts ...Option) (*Topology, error) {
	internalIP, internalPort, err := conversion.IPPortFromStr(internalAddr)
	if err != nil {
		return nil, fmt.Errorf("bad internal address: %s", err)
	}
	t := &Topology{
		topofile:     topofile,
		lock:         lockfile.New(topofile, lockfile.DefaultAttempts, lockfile.DefaultSleep),
		internalAddr: conversion.IPPortToStr(internalIP, internalPort),
		router:       defaultRouter,
		minPort:      DefaultMinPort,
		maxPort:      DefaultMaxPort,
		log:          logger.With().Str("component", "topology").Str("topofile", topofile).Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}

	doc, err := t.load()
	if err != nil {
		return nil, err
	}
	for name, br := range doc.BorderRouters {
		if strings.HasSuffix(name, "-1111") {
			continue
		}
		ip, port, err := conversion.IPPortFromStr(br.InternalAddr)
		if err != nil {
			return nil, fmt.Errorf("bad internal address in router %s: %s", name, err)
		}
		if ip == internalIP && port == internalPort {
			return nil, fmt.Errorf(
				"internal address %s already present in a non ESDX BR in the topology file", internalAddr)
		}
	}
	return t, nil
}

func defaultRouter(remote netip.Addr) (netip.Addr, error) {
	switch {
	case remote.Is4():
		return netip.MustParseAddr("127.0.0.1"), nil
	case remote.Is6():
		return netip.MustParseAddr("::1"), nil
	default:
		return netip.Addr{}, fmt.Errorf("unknown ip version in %s", remote)
	}
}

// Activate splices the interface described by the contract into the ESDX
// border router, creating the router if necessary.
func (t *Topology) Activate(c *Contract) error {
	return t.mutate(func(doc *Document) error {
		info, err := t.contractInfo(doc, c)
		if err != nil {
			return err
		}
		return t.addInterface(doc, info)
	})
}

// Deactivate removes the interface whose remote underlay equals the
// contract's br_address; an emptied ESDX router is removed entirely.
func (t *Topology) Deactivate(c *Contract) error {
	return t.mutate(func(doc *Document) error {
		info, err := t.contractInfo(doc, c)
		if err != nil {
			return err
		}
		return removeInterface(doc, info)
	})
}

// mutate runs f on the document under the file lock and writes the result
// back. The lock is released on every exit path.
func (t *Topology) mutate(f func(doc *Document) error) (retErr error) {
	release, err := t.lock.Acquire()
	if err != nil {
		return errors.Wrap(err, "acquiring topology lock")
	}
	defer func() {
		if err := release(); err != nil && retErr == nil {
			retErr = err
		}
	}()

	doc, err := t.load()
	if err != nil {
		return err
	}
	if err := f(doc); err != nil {
		return err
	}
	return t.write(doc)
}

func (t *Topology) load() (*Document, error) {
	raw, err := os.ReadFile(t.topofile)
	if err != nil {
		return nil, errors.Wrap(err, "reading topology")
	}
	doc := &Document{}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, errors.Wrap(err, "parsing topology")
	}
	return doc, nil
}

func (t *Topology) write(doc *Document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "serializing topology")
	}
	raw = append(raw, '\n')
	// single write; the previous content stays intact until the overwrite
	if err := os.WriteFile(t.topofile, raw, 0o644); err != nil {
		return errors.Wrap(err, "writing topology")
	}
	return nil
}

// topoInfo is the topology-relevant projection of a contract, seen from the
// local AS.
type topoInfo struct {
	remoteIA       string
	remoteUnderlay string
	mtu            int32
	linkTo         string
}

func (t *Topology) contractInfo(doc *Document, c *Contract) (*topoInfo, error) {
	var remoteIA string
	switch doc.IsdAs {
	case c.SellerIAID:
		remoteIA = c.BuyerIAID
	case c.BuyerIAID:
		remoteIA = c.SellerIAID
	default:
		return nil, fmt.Errorf(
			"bad contract: topology indicates local AS is %s, and contract has seller=%s and buyer=%s",
			doc.IsdAs, c.SellerIAID, c.BuyerIAID)
	}
	return &topoInfo{
		remoteIA:       remoteIA,
		remoteUnderlay: c.BrAddress,
		mtu:            c.MTU,
		linkTo:         c.LinkTo,
	}, nil
}

// esdxBrName derives the name of the synthetic border router that carries
// the dynamically purchased interfaces.
func esdxBrName(ia string) string {
	return "br" + strings.ReplaceAll(ia, ":", "_") + "-1111"
}

// addInterface picks the lowest free interface id across all routers of the
// document and the lowest free public port for the local interface IP, then
// splices the new interface into the ESDX router.
func (t *Topology) addInterface(doc *Document, info *topoInfo) error {
	if doc.BorderRouters == nil {
		doc.BorderRouters = map[string]*BorderRouter{}
	}
	name := esdxBrName(doc.IsdAs)
	var ifidInUse []int
	portsByIP := map[netip.Addr][]int{}
	for _, br := range doc.BorderRouters {
		for ifid, iface := range br.Interfaces {
			if id, err := strconv.Atoi(ifid); err == nil {
				ifidInUse = append(ifidInUse, id)
			}
			ip, port, err := conversion.IPPortFromStr(iface.Underlay.Public)
			if err != nil {
				return fmt.Errorf("bad public underlay %q: %s", iface.Underlay.Public, err)
			}
			portsByIP[ip] = append(portsByIP[ip], port)
		}
	}
	esdxBr := doc.BorderRouters[name]
	if esdxBr == nil {
		esdxBr = &BorderRouter{
			InternalAddr: t.internalAddr,
			Interfaces:   map[string]*Interface{},
		}
		doc.BorderRouters[name] = esdxBr
	}
	if esdxBr.Interfaces == nil {
		esdxBr.Interfaces = map[string]*Interface{}
	}

	ifid := lowestFreeValue(ifidInUse, 1)
	remoteIP, _, err := conversion.IPPortFromStr(info.remoteUnderlay)
	if err != nil {
		return fmt.Errorf("bad remote underlay %q: %s", info.remoteUnderlay, err)
	}
	publicIP, err := t.router(remoteIP)
	if err != nil {
		return err
	}
	port := lowestFreeValue(portsByIP[publicIP], t.minPort)
	if port > t.maxPort {
		return fmt.Errorf("could not find a free port for public ip %s", publicIP)
	}

	esdxBr.Interfaces[strconv.Itoa(ifid)] = &Interface{
		Underlay: Underlay{
			Public: conversion.IPPortToStr(publicIP, port),
			Remote: info.remoteUnderlay,
		},
		IsdAs:  info.remoteIA,
		LinkTo: info.linkTo,
		MTU:    info.mtu,
	}
	t.log.Info().
		Str("router", name).
		Int("ifid", ifid).
		Str("remote", info.remoteUnderlay).
		Msg("interface activated")
	return nil
}

func removeInterface(doc *Document, info *topoInfo) error {
	found := false
	for _, br := range doc.BorderRouters {
		for ifid, iface := range br.Interfaces {
			if iface.Underlay.Remote == info.remoteUnderlay {
				delete(br.Interfaces, ifid)
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		return fmt.Errorf("interface with remote %s not found in topology", info.remoteUnderlay)
	}
	name := esdxBrName(doc.IsdAs)
	if br, ok := doc.BorderRouters[name]; ok && len(br.Interfaces) == 0 {
		delete(doc.BorderRouters, name)
	}
	return nil
}

// lowestFreeValue returns the smallest integer >= min not present in used.
func lowestFreeValue(used []int, min int) int {
	sort.Ints(used)
	ret := min
	for _, v := range used {
		if v < min {
			continue
		}
		if ret < v {
			break
		}
		ret = v + 1
	}
	return ret
}
