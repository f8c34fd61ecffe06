package engine

import "time"

// Device and cache geometry. These are compiled-in, matching the original
// implementation's fixed constants.h — only cache capacity, scratch
// directory, sync interval, and keep-scratch are runtime-configurable.
const (
	// PageSize is the unit of sub-extent addressing: 4 KiB.
	PageSize = 0x1000
	pageMask = PageSize - 1

	// PagesPerExtent is the number of pages that make up one extent.
	PagesPerExtent = 1 << 10

	// ExtentSize is the unit of remote persistence: 4 MiB.
	ExtentSize = PageSize * PagesPerExtent
	extentMask = ExtentSize - 1

	// DeviceSize is the total addressable size of the virtual block device.
	DeviceSize = 0x40000000 // 1 GiB

	// ExtentBuckets is the number of shards in the extent lock table.
	ExtentBuckets = 1 << 8

	// ScratchDescriptors is the default size of the scratch descriptor pool.
	ScratchDescriptors = 1 << 6

	// FillByte fills extents that have never been written to the remote
	// store. Deliberately not zero, so a hex dump distinguishes
	// "never written" from "written as zero".
	FillByte = 0x33

	// DefaultCacheMegabytes is the default LRU capacity in megabytes.
	DefaultCacheMegabytes = 4096

	// DefaultSyncInterval is how often the continuous sync worker scans
	// for dirty, unreferenced extents.
	DefaultSyncInterval = 1 * time.Second

	// ExtentObjectTemplate is the remote object naming scheme: the tag is
	// rendered as 16 lowercase hex digits.
	ExtentObjectTemplate = "%016x.extent"

	// ScratchFileTemplate names the sparse host file backing the scratch
	// descriptor pool, scoped by process ID.
	ScratchFileTemplate = "s3bd.%d"
)

// extentTag returns the extent-aligned tag containing byte offset off.
func extentTag(off int64) uint64 {
	return uint64(off) &^ uint64(extentMask)
}

// pageTag returns the page-aligned tag containing byte offset off.
func pageTag(off int64) uint64 {
	return uint64(off) &^ uint64(pageMask)
}

// extentTagOfPage rounds a page tag down to its containing extent tag.
func extentTagOfPage(tag uint64) uint64 {
	return tag &^ uint64(extentMask)
}
