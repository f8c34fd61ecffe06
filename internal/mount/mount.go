// Package mount exposes an Engine as a single-file FUSE filesystem: one
// regular file, /blocks, whose size is the device's fixed capacity and
// whose reads and writes are satisfied by the storage engine rather than
// any real backing file. Everything about the mount other than that one
// file's data is fixed: mode, ownership, and timestamps never change, and
// attribute mutations are refused the same way the original implementation
// refused them.
package mount

import (
	"context"
	"log"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/jamesmcclain/s3bd-go/internal/engine"
)

const deviceName = "blocks"

// FS is the root of the mounted filesystem.
type FS struct {
	engine   *engine.Engine
	readOnly bool
}

var _ fs.FS = (*FS)(nil)
var _ fs.FSStatfser = (*FS)(nil)

// New wraps eng as a fuse.FS exposing a single /blocks device file. When
// readOnly is true, the device file reports mode 0400 instead of 0600 and
// rejects writes.
func New(eng *engine.Engine, readOnly bool) *FS {
	return &FS{engine: eng, readOnly: readOnly}
}

// Root returns the filesystem's single directory node.
func (f *FS) Root() (fs.Node, error) {
	return &root{engine: f.engine, readOnly: f.readOnly}, nil
}

// Statfs reports the device's fixed capacity in terms of PageSize-sized
// blocks, free space unreported since the engine's occupancy isn't a
// simple free/used split at the page level.
func (f *FS) Statfs(ctx context.Context, req *fuse.StatfsRequest, resp *fuse.StatfsResponse) error {
	resp.Blocks = engine.DeviceSize / engine.PageSize
	resp.Bsize = engine.PageSize
	resp.Frsize = engine.PageSize
	resp.Files = 2
	return nil
}

// Mount mounts fsys at mountpoint and serves requests until the connection
// closes or ctx is cancelled. When readOnly is true, the mount is both
// advertised to the kernel as read-only and enforced at the device-file
// layer (mode 0400, writes rejected).
func Mount(ctx context.Context, mountpoint string, eng *engine.Engine, readOnly bool) error {
	opts := []fuse.MountOption{
		fuse.FSName("s3bd"),
		fuse.Subtype("s3bd-go"),
		fuse.LocalVolume(),
		fuse.VolumeName("s3bd"),
	}
	if readOnly {
		opts = append(opts, fuse.ReadOnly())
	}

	c, err := fuse.Mount(mountpoint, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	log.Printf("mount: serving %s at %s (read-only=%v)", deviceName, mountpoint, readOnly)

	errc := make(chan error, 1)
	go func() { errc <- fs.Serve(c, New(eng, readOnly)) }()

	select {
	case <-ctx.Done():
		fuse.Unmount(mountpoint)
		<-errc
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

// root is the filesystem's top-level directory, containing exactly one
// entry: the device file.
type root struct {
	engine   *engine.Engine
	readOnly bool
}

var _ fs.Node = (*root)(nil)
var _ fs.NodeStringLookuper = (*root)(nil)
var _ fs.HandleReadDirAller = (*root)(nil)

func (r *root) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0755
	a.Nlink = 2
	a.Inode = 1
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())
	return nil
}

func (r *root) Lookup(ctx context.Context, name string) (fs.Node, error) {
	if name != deviceName {
		return nil, syscall.ENOENT
	}
	return &device{engine: r.engine, readOnly: r.readOnly}, nil
}

func (r *root) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	return []fuse.Dirent{
		{Inode: 2, Name: deviceName, Type: fuse.DT_File},
	}, nil
}

// device is the single virtual block device file, backed entirely by the
// storage engine: its attributes are fixed and its contents come from
// Engine.Read/Engine.Write rather than any real file on disk.
type device struct {
	engine   *engine.Engine
	readOnly bool
}

var _ fs.Node = (*device)(nil)
var _ fs.NodeOpener = (*device)(nil)
var _ fs.HandleReader = (*device)(nil)
var _ fs.HandleWriter = (*device)(nil)
var _ fs.HandleFlusher = (*device)(nil)
var _ fs.NodeFsyncer = (*device)(nil)
var _ fs.NodeSetattrer = (*device)(nil)
var _ fs.NodeGetxattrer = (*device)(nil)
var _ fs.NodeSetxattrer = (*device)(nil)

func (d *device) Attr(ctx context.Context, a *fuse.Attr) error {
	if d.readOnly {
		a.Mode = 0400
	} else {
		a.Mode = 0600
	}
	a.Nlink = 1
	a.Size = uint64(engine.DeviceSize)
	a.Inode = 2
	a.Uid = uint32(os.Getuid())
	a.Gid = uint32(os.Getgid())
	return nil
}

func (d *device) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	return d, nil
}

func (d *device) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := d.engine.Read(ctx, req.Offset, buf)
	if err != nil {
		return err
	}
	resp.Data = buf[:n]
	return nil
}

func (d *device) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if d.readOnly {
		return syscall.EROFS
	}
	n, err := d.engine.Write(ctx, req.Offset, req.Data)
	if err != nil {
		return err
	}
	resp.Size = n
	return nil
}

// Flush and Fsync are no-ops: every write already lands in the scratch
// file synchronously, and pushing it on to the backing store is the
// background workers' job, not the caller's.
func (d *device) Flush(ctx context.Context, req *fuse.FlushRequest) error { return nil }
func (d *device) Fsync(ctx context.Context, req *fuse.FsyncRequest) error { return nil }

// Setattr refuses every attribute mutation: the device's mode, ownership,
// size, and timestamps are fixed for the life of the mount.
func (d *device) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return syscall.EPERM
}

func (d *device) Getxattr(ctx context.Context, req *fuse.GetxattrRequest, resp *fuse.GetxattrResponse) error {
	return syscall.ENOTSUP
}

func (d *device) Setxattr(ctx context.Context, req *fuse.SetxattrRequest) error {
	return syscall.ENOTSUP
}
