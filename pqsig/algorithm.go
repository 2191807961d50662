package pqsig

import (
	"sort"
	"sync"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"

	"xdao.co/pqdag/model"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = "ML-DSA-65"

// Algorithm describes one registered signature scheme.
type Algorithm struct {
	Name string
	// NISTLevel is the claimed NIST post-quantum security category (1-5).
	NISTLevel int

	scheme sign.Scheme
}

func (a Algorithm) PublicKeySize() int { return a.scheme.PublicKeySize() }
func (a Algorithm) SecretKeySize() int { return a.scheme.PrivateKeySize() }
func (a Algorithm) SignatureSize() int { return a.scheme.SignatureSize() }

// postQuantum lists the circl scheme names admitted into the registry with
// their claimed NIST levels. Classical-only schemes (Ed25519, Ed448) are
// deliberately absent.
var postQuantum = map[string]int{
	"ML-DSA-44":          2,
	"ML-DSA-65":          3,
	"ML-DSA-87":          5,
	"Dilithium2":         2,
	"Dilithium3":         3,
	"Dilithium5":         5,
	"Ed25519-Dilithium2": 2,
	"Ed448-Dilithium3":   3,
}

// Context is the handle returned by Init. It is immutable and safe for
// concurrent use.
type Context struct {
	algs map[string]Algorithm
}

var (
	initOnce sync.Once
	initCtx  *Context
)

// Init builds the algorithm registry. It may be called any number of times;
// every call returns the same *Context.
func Init() *Context {
	initOnce.Do(func() {
		c := &Context{algs: make(map[string]Algorithm, len(postQuantum))}
		for _, s := range schemes.All() {
			level, ok := postQuantum[s.Name()]
			if !ok {
				continue
			}
			c.algs[s.Name()] = Algorithm{Name: s.Name(), NISTLevel: level, scheme: s}
		}
		initCtx = c
	})
	return initCtx
}

// Algorithms returns the registered algorithms sorted by name.
func (c *Context) Algorithms() []Algorithm {
	out := make([]Algorithm, 0, len(c.algs))
	for _, a := range c.algs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the algorithm registered under name (exact match).
func (c *Context) Lookup(name string) (Algorithm, error) {
	if name == "" {
		name = DefaultAlgorithm
	}
	a, ok := c.algs[name]
	if !ok {
		return Algorithm{}, model.Newf(model.KindAlgorithm, "DAG-SIG-001", "unsupported signature algorithm %q", name)
	}
	return a, nil
}
