// Package pairing drives Bluetooth pairing between the device under test and a
// reference device.
//
// A Session binds the two devices to their roles for one test: which side opens
// the ACL link, which side starts pairing and which side accesses a protected
// service. A Transport knows how to perform each of those steps on BR/EDR or LE,
// and an Acceptor answers the pairing events both devices emit, according to the
// association model their IO capabilities select. Scenarios combine the three
// into the general and dedicated pairing procedures, and the Catalog lists every
// IO-capability class the harness runs.
package pairing
