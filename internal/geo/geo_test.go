package geo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingProvider struct {
	calls int
	data  map[string]*Info
}

func (p *countingProvider) Lookup(ip string) (*Info, error) {
	p.calls++
	if info, ok := p.data[ip]; ok {
		return info, nil
	}
	return nil, errors.New("not found")
}

func TestResolverCaches(t *testing.T) {
	p := &countingProvider{data: map[string]*Info{"200.1.1.1": {CountryCode: "BR", City: "São Paulo"}}}
	r := NewResolver(p, 10, time.Hour, nil)

	assert.Equal(t, "BR", r.Resolve("200.1.1.1").CountryCode)
	assert.Equal(t, "BR", r.Resolve("200.1.1.1").CountryCode)
	assert.Equal(t, 1, p.calls)

	assert.Nil(t, r.Resolve("10.0.0.1"))
	assert.Nil(t, r.Resolve("10.0.0.1"))
	assert.Equal(t, 2, p.calls)

	assert.Nil(t, r.Resolve(""))
	assert.Equal(t, 2, p.calls)
}

func TestResolverEvictsOldest(t *testing.T) {
	p := &countingProvider{data: map[string]*Info{
		"1.1.1.1": {CountryCode: "AU"},
		"2.2.2.2": {CountryCode: "FR"},
		"3.3.3.3": {CountryCode: "US"},
	}}
	r := NewResolver(p, 2, time.Hour, nil)

	r.Resolve("1.1.1.1")
	r.Resolve("2.2.2.2")
	r.Resolve("3.3.3.3")
	assert.Equal(t, 3, p.calls)

	r.Resolve("1.1.1.1")
	assert.Equal(t, 4, p.calls)
	r.Resolve("3.3.3.3")
	assert.Equal(t, 4, p.calls)
}

func TestNilResolver(t *testing.T) {
	var r *Resolver
	assert.Nil(t, r.Resolve("1.1.1.1"))
}
