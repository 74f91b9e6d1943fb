// Package geoannotate adds optional ASN and geographic columns to a
// CIDR block report, backed by MaxMind GeoLite2 databases. It covers the
// single operation the reporting mode needs:
// given a block's network address, return its ASN and city-level geo
// fields as report columns.
package geoannotate

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
)

// Readers holds the open MaxMind database handles used to annotate a
// report. Either field may be nil; annotation methods skip lookups for
// whichever reader is absent.
type Readers struct {
	ASN  *geoip2.Reader
	City *geoip2.Reader
}

// Open opens the ASN and/or City MaxMind databases. Either path may be
// empty to skip opening that database.
func Open(asnPath, cityPath string) (*Readers, error) {
	r := &Readers{}

	if asnPath != "" {
		db, err := geoip2.Open(asnPath)
		if err != nil {
			return nil, fmt.Errorf("open ASN database: %w", err)
		}
		r.ASN = db
	}

	if cityPath != "" {
		db, err := geoip2.Open(cityPath)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("open City database: %w", err)
		}
		r.City = db
	}

	return r, nil
}

// Close releases whichever database handles are open.
func (r *Readers) Close() error {
	var err error
	if r.ASN != nil {
		if e := r.ASN.Close(); e != nil {
			err = e
		}
	}
	if r.City != nil {
		if e := r.City.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Annotation is one block's worth of optional report columns.
type Annotation struct {
	ASN     int
	ASNOrg  string
	Country string
	Region  string
	City    string
}

// Annotate looks up addr (a host-order uint32, per this codebase's
// internal address representation) in whichever databases are open and
// fills in the corresponding Annotation fields. A lookup miss in one
// database does not prevent the other from populating its fields.
func (r *Readers) Annotate(addr uint32) Annotation {
	var a Annotation

	ip := net.IP(netip.AddrFrom4([4]byte{byte(addr >> 24), byte(addr >> 16), byte(addr >> 8), byte(addr)}).AsSlice())

	if r.ASN != nil {
		if rec, err := r.ASN.ASN(ip); err == nil {
			a.ASN = int(rec.AutonomousSystemNumber)
			a.ASNOrg = rec.AutonomousSystemOrganization
		}
	}

	if r.City != nil {
		if rec, err := r.City.City(ip); err == nil {
			a.Country = rec.Country.IsoCode
			a.City = rec.City.Names["en"]
			if len(rec.Subdivisions) > 0 {
				a.Region = rec.Subdivisions[0].Names["en"]
			}
		}
	}

	return a
}
