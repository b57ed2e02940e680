// Package gpu uploads the packed octree buffers to a wgpu device. The
// core stays transport-agnostic; this is the reference uploader for
// renderers built on webgpu.
package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/sparsevox/svo"
)

// OctreeBuffers owns the device-side copies of one octree upload.
type OctreeBuffers struct {
	Device *wgpu.Device

	HierarchyBuf *wgpu.Buffer
	BrickBuf     *wgpu.Buffer
	ColorBuf     *wgpu.Buffer
	NormalBuf    *wgpu.Buffer
	LookupBuf    *wgpu.Buffer
	ConfigBuf    *wgpu.Buffer
	MaterialBuf  *wgpu.Buffer
}

// NewOctreeBuffers allocates and fills device buffers from an octree's
// packed views. Optional sections (compressed attributes) allocate only
// when present.
func NewOctreeBuffers(device *wgpu.Device, octree *svo.Octree) (*OctreeBuffers, error) {
	bufs := octree.GPUBuffers()
	out := &OctreeBuffers{Device: device}

	var err error
	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst

	if out.HierarchyBuf, err = makeBuffer(device, "SvoHierarchy", bufs.Hierarchy, storage); err != nil {
		return nil, err
	}
	if out.BrickBuf, err = makeBuffer(device, "SvoBricks", bufs.Bricks, storage); err != nil {
		return nil, err
	}
	if len(bufs.Colors) > 0 {
		if out.ColorBuf, err = makeBuffer(device, "SvoColors", bufs.Colors, storage); err != nil {
			return nil, err
		}
	}
	if len(bufs.Normals) > 0 {
		if out.NormalBuf, err = makeBuffer(device, "SvoNormals", bufs.Normals, storage); err != nil {
			return nil, err
		}
	}
	if out.LookupBuf, err = makeBuffer(device, "SvoBrickGrid", bufs.Lookup, storage); err != nil {
		return nil, err
	}
	if out.ConfigBuf, err = makeBuffer(device, "SvoConfig", bufs.Config,
		wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst); err != nil {
		return nil, err
	}
	if out.MaterialBuf, err = makeBuffer(device, "SvoMaterials", bufs.Materials, storage); err != nil {
		return nil, err
	}
	return out, nil
}

// makeBuffer creates one buffer and writes its payload through the queue.
func makeBuffer(device *wgpu.Device, label string, data []byte, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	size := uint64(len(data))
	if size == 0 {
		size = 4 // wgpu rejects zero-sized bindings
	}
	buf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s buffer: %w", label, err)
	}
	if len(data) > 0 {
		device.GetQueue().WriteBuffer(buf, 0, data)
	}
	return buf, nil
}

// Update re-uploads a rebuilt octree into the existing buffers when the
// sizes still fit, recreating them otherwise.
func (b *OctreeBuffers) Update(octree *svo.Octree) error {
	bufs := octree.GPUBuffers()
	queue := b.Device.GetQueue()

	update := func(label string, target **wgpu.Buffer, data []byte, usage wgpu.BufferUsage) error {
		if len(data) == 0 {
			return nil
		}
		if *target != nil && (*target).GetSize() >= uint64(len(data)) {
			queue.WriteBuffer(*target, 0, data)
			return nil
		}
		if *target != nil {
			(*target).Release()
		}
		buf, err := makeBuffer(b.Device, label, data, usage)
		if err != nil {
			return err
		}
		*target = buf
		return nil
	}

	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	if err := update("SvoHierarchy", &b.HierarchyBuf, bufs.Hierarchy, storage); err != nil {
		return err
	}
	if err := update("SvoBricks", &b.BrickBuf, bufs.Bricks, storage); err != nil {
		return err
	}
	if err := update("SvoColors", &b.ColorBuf, bufs.Colors, storage); err != nil {
		return err
	}
	if err := update("SvoNormals", &b.NormalBuf, bufs.Normals, storage); err != nil {
		return err
	}
	if err := update("SvoBrickGrid", &b.LookupBuf, bufs.Lookup, storage); err != nil {
		return err
	}
	if err := update("SvoConfig", &b.ConfigBuf, bufs.Config,
		wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	return update("SvoMaterials", &b.MaterialBuf, bufs.Materials, storage)
}

// Release frees every device buffer.
func (b *OctreeBuffers) Release() {
	for _, buf := range []*wgpu.Buffer{
		b.HierarchyBuf, b.BrickBuf, b.ColorBuf, b.NormalBuf,
		b.LookupBuf, b.ConfigBuf, b.MaterialBuf,
	} {
		if buf != nil {
			buf.Release()
		}
	}
}
