package resources

import "github.com/spaghettifunk/rhi/engine/renderer/metadata"

type Buffer struct {
	resource
	size uint64
}

var _ metadata.Buffer = (*Buffer)(nil)

func (b *Buffer) Size() uint64 {
	return b.size
}

type BufferView struct {
	deviceObject
	buffer   *Buffer
	viewType metadata.ViewType
}

var _ metadata.BufferView = (*BufferView)(nil)

func (v *BufferView) ViewType() metadata.ViewType {
	return v.viewType
}

func (v *BufferView) Resource() metadata.Resource {
	return v.buffer
}

func (v *BufferView) Buffer() metadata.Buffer {
	return v.buffer
}

type Sampler struct {
	deviceObject
	name string
}

var _ metadata.Sampler = (*Sampler)(nil)

func (s *Sampler) Name() string {
	return s.name
}

type Shader struct {
	deviceObject
	name       string
	shaderType metadata.ShaderType
}

var _ metadata.Shader = (*Shader)(nil)

func (s *Shader) Name() string {
	return s.name
}

func (s *Shader) ShaderType() metadata.ShaderType {
	return s.shaderType
}
