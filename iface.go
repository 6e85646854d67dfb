package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/vishvananda/netlink"
)

var ErrNotEthernet = errors.New("not an ethernet interface")

// Virtual interfaces that report ethernet encapsulation but never carry a fieldbus.
var excludedIfacePrefixes = []string{
	"bridge",
	"utun",
	"awdl",
	"anpi",
	"llw",
}

// sysClassNet is where the kernel exposes per-device attributes, variable for tests.
var sysClassNet = "/sys/class/net"

// Interfaces returns the links which could carry EtherCAT: up and running, not loopback, ethernet and not wireless.
func Interfaces() ([]netlink.Link, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	var candidates []netlink.Link
	for _, link := range links {
		if !isEthernet(link) || excludedName(link.Attrs().Name) {
			continue
		}

		if !usable(link) {
			continue
		}

		candidates = append(candidates, link)
	}

	return candidates, nil
}

// ResolveInterface checks that the named interface exists and is an ethernet device we can attach to.
func ResolveInterface(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("link '%s': %w", name, err)
	}

	if !isEthernet(link) {
		return nil, fmt.Errorf("link '%s': %w", name, ErrNotEthernet)
	}

	return link, nil
}

// usable reports whether the link is administratively up, has carrier and is not a loopback device.
func usable(link netlink.Link) bool {
	flags := link.Attrs().Flags

	return flags&net.FlagUp != 0 && flags&net.FlagRunning != 0 && flags&net.FlagLoopback == 0
}

func isEthernet(link netlink.Link) bool {
	attrs := link.Attrs()
	if attrs.EncapType != "ether" || attrs.Flags&net.FlagLoopback != 0 {
		return false
	}

	// Wireless devices report ethernet encapsulation as well
	uevent, err := os.ReadFile(filepath.Join(sysClassNet, attrs.Name, "uevent"))
	if err != nil {
		return true
	}

	return !strings.Contains(string(uevent), "DEVTYPE=wlan")
}

func excludedName(name string) bool {
	for _, prefix := range excludedIfacePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}

	return false
}
