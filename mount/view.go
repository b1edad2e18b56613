// Package mount serves a read-only FUSE view of a knowledge base in its
// idealized layout: every node is a directory and every leaf a plain file
// named after its last address segment, without extension or marker.
package mount

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
	"github.com/lumineer/alight/config"
	"github.com/lumineer/alight/internal/util"
)

// Source is the read access the view needs; *namespace.Tree satisfies it.
type Source interface {
	Resolve(a address.Address, createIfAbsent bool) (alight.NodeView, error)
	Read(a address.Address) ([]alight.Entry, error)
	ReadLeaf(a address.Address) (string, error)
}

// lockedSource serializes kernel requests, which arrive concurrently,
// onto a tree that is single-threaded.
type lockedSource struct {
	mu  sync.Mutex
	src Source
}

func (s *lockedSource) Resolve(a address.Address) (alight.NodeView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Resolve(a, false)
}

func (s *lockedSource) Read(a address.Address) ([]alight.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Read(a)
}

func (s *lockedSource) ReadLeaf(a address.Address) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.ReadLeaf(a)
}

// View mounts a Source with go-fuse.
type View struct {
	src    *lockedSource
	cfg    *config.Config
	server *fuse.Server
	owner  fuse.Owner
	logger util.Logger
}

// New creates a View over src. Nothing is mounted until [View.Serve].
func New(src Source, cfg *config.Config) *View {
	return &View{
		src:    &lockedSource{src: src},
		cfg:    cfg,
		owner:  fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())},
		logger: util.GetLogger("MountView"),
	}
}

func seconds(s float64) *time.Duration {
	d := time.Duration(s * float64(time.Second))
	return &d
}

// Serve mounts the view at mountPoint and returns once the mount is live.
func (v *View) Serve(mountPoint string) error {
	opts := v.cfg.MountOptions
	root := &dirNode{view: v, addr: address.Root()}
	rawFS := fs.NewNodeFS(root, &fs.Options{
		AttrTimeout:  seconds(v.cfg.AttrTimeout),
		EntryTimeout: seconds(v.cfg.EntryTimeout),
	})

	srv, err := fuse.NewServer(rawFS, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug || v.cfg.LogLvl == util.TraceLevel,
		Logger: util.NewLogLogger("FuseServer", util.DebugLevel),
	})
	if err != nil {
		return err
	}
	v.server = srv

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		return err
	}
	v.logger.Info().Str("mountpoint", mountPoint).Msg("Knowledge base mounted read-only")
	return nil
}

// Wait blocks until the view is unmounted.
func (v *View) Wait() {
	if v.server != nil {
		v.server.Wait()
	}
}

// Unmount cleanly unmounts the view.
func (v *View) Unmount() error {
	if v.server == nil {
		return nil
	}
	return v.server.Unmount()
}

func (v *View) setAttr(out *fuse.Attr, kind alight.Kind, size int) {
	out.Owner = v.owner
	if kind == alight.Leaf {
		out.Mode = fuse.S_IFREG | 0o444
		out.Size = uint64(size)
		out.Nlink = 1
		return
	}
	out.Mode = fuse.S_IFDIR | 0o555
	out.Nlink = 2
}

// toErrno maps tree errors onto the errno the kernel expects.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, alight.ErrInvalidAddress), errors.Is(err, alight.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, alight.ErrNotContainer):
		return syscall.ENOTDIR
	case errors.Is(err, alight.ErrConflict):
		return syscall.EEXIST
	default:
		return syscall.EIO
	}
}
