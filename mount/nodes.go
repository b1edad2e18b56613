package mount

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/lumineer/alight"
	"github.com/lumineer/alight/address"
)

// dirNode presents a tree node as a directory.
type dirNode struct {
	fs.Inode
	view *View
	addr address.Address
}

var (
	_ fs.NodeLookuper  = (*dirNode)(nil)
	_ fs.NodeReaddirer = (*dirNode)(nil)
	_ fs.NodeGetattrer = (*dirNode)(nil)
)

func (d *dirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	a, err := d.addr.Child(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	v, err := d.view.src.Resolve(a)
	if err != nil {
		d.view.logger.Debug().Err(err).Str("address", a.String()).Msg("Lookup failed")
		return nil, toErrno(err)
	}

	d.view.setAttr(&out.Attr, v.Kind, len(v.Content))
	if v.Kind == alight.Leaf {
		child := &leafNode{view: d.view, addr: a}
		return d.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG}), 0
	}
	child := &dirNode{view: d.view, addr: a}
	return d.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

func (d *dirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := d.view.src.Read(d.addr)
	if err != nil {
		d.view.logger.Debug().Err(err).Str("address", d.addr.String()).Msg("Readdir failed")
		return nil, toErrno(err)
	}
	return fs.NewListDirStream(dirEntries(entries)), 0
}

func (d *dirNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	d.view.setAttr(&out.Attr, alight.Node, 0)
	return 0
}

func dirEntries(entries []alight.Entry) []fuse.DirEntry {
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFDIR)
		if e.Kind == alight.Leaf {
			mode = fuse.S_IFREG
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return out
}

// leafNode presents a leaf as a read-only regular file.
type leafNode struct {
	fs.Inode
	view *View
	addr address.Address
}

var (
	_ fs.NodeGetattrer = (*leafNode)(nil)
	_ fs.NodeOpener    = (*leafNode)(nil)
	_ fs.NodeReader    = (*leafNode)(nil)
)

func (l *leafNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	content, err := l.view.src.ReadLeaf(l.addr)
	if err != nil {
		return toErrno(err)
	}
	l.view.setAttr(&out.Attr, alight.Leaf, len(content))
	return 0
}

func (l *leafNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return nil, 0, syscall.EROFS
	}
	var fuseFlags uint32
	if l.view.cfg.DirectIO {
		fuseFlags |= fuse.FOPEN_DIRECT_IO
	}
	return nil, fuseFlags, 0
}

func (l *leafNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	content, err := l.view.src.ReadLeaf(l.addr)
	if err != nil {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(readAt([]byte(content), dest, off)), 0
}

// readAt copies data[off:] into dest and returns the filled part.
func readAt(data, dest []byte, off int64) []byte {
	if off >= int64(len(data)) {
		return dest[:0]
	}
	n := copy(dest, data[off:])
	return dest[:n]
}
