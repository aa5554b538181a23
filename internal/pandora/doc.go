// Package pandora models the Pandora Bluetooth control plane used to drive a
// device-under-test and its reference peers.
//
// The package only describes what the harness can ask a device to do:
//   - Host: reset, ACL and LE connections, advertising and scanning
//   - Security: pairing, pairing event streams, bond storage
//   - Profiles: A2DP, GATT, HAP, VCP, L2CAP, RFCOMM
//   - Bumble-only experimental services such as BumbleConfig
//
// Protocol state is owned by the devices. Implementations of the service
// interfaces live in subpackages (see grpcpandora).
package pandora
