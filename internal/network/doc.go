// Package network holds the validated value types NetFleet uses to describe
// devices and links: MAC addresses, VLANs, IP prefixes, link speeds, port
// descriptors and interface configuration.
//
// Every type is immutable, comparable and has a parser and printer that
// round-trip: Parse(x.String()) == x. Parse failures return a
// *fault.ValueError naming the field; nothing here panics on bad input.
package network
