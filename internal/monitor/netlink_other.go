//go:build !linux

package monitor

import "errors"

func newNetlinkSource() (Source, error) {
	return nil, errors.New("netlink process events require linux")
}
