package uploadcore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	assemblyPartName = "assembly.part"
	dirPerm          = 0o750
)

// ChunkFS 分片临时文件存储，每个会话一个目录，每个分片一个文件
type ChunkFS struct {
	root string
}

func NewChunkFS(root string) (*ChunkFS, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "创建分片目录失败: %s", root)
	}
	return &ChunkFS{root: root}, nil
}

func (f *ChunkFS) sessionDir(uploadId string) string {
	return filepath.Join(f.root, uploadId)
}

// ChunkPath 分片文件路径，由 (会话, 序号) 唯一确定
func (f *ChunkFS) ChunkPath(uploadId string, chunkNumber int64) string {
	return filepath.Join(f.sessionDir(uploadId), fmt.Sprintf("chunk_%08d", chunkNumber))
}

// AssemblyPath 合并中间文件路径
func (f *ChunkFS) AssemblyPath(uploadId string) string {
	return filepath.Join(f.sessionDir(uploadId), assemblyPartName)
}

// WriteChunk 先写临时文件再 rename，同一序号的重复上传以最后一次为准
func (f *ChunkFS) WriteChunk(uploadId string, chunkNumber int64, data []byte) (string, error) {
	dir := f.sessionDir(uploadId)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", errors.Wrapf(err, "创建会话目录失败: %s", dir)
	}

	final := f.ChunkPath(uploadId, chunkNumber)
	tmp, err := os.CreateTemp(dir, filepath.Base(final)+".*.tmp")
	if err != nil {
		return "", errors.Wrap(err, "创建分片临时文件失败")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.Wrap(err, "写入分片失败")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", errors.Wrap(err, "同步分片失败")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, "关闭分片文件失败")
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return "", errors.Wrap(err, "重命名分片文件失败")
	}
	return final, nil
}

// OpenChunk 打开分片用于顺序读取
func (f *ChunkFS) OpenChunk(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "打开分片失败: %s", path)
	}
	return file, nil
}

// CreateAssembly 创建合并中间文件，已存在则截断
func (f *ChunkFS) CreateAssembly(uploadId string) (*os.File, error) {
	dir := f.sessionDir(uploadId)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errors.Wrapf(err, "创建会话目录失败: %s", dir)
	}
	file, err := os.OpenFile(f.AssemblyPath(uploadId), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, errors.Wrap(err, "创建合并文件失败")
	}
	return file, nil
}

// Remove 删除单个文件，不存在视为成功
func (f *ChunkFS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "删除文件失败: %s", path)
	}
	return nil
}

// RemoveSession 删除会话下的全部分片与合并中间文件
func (f *ChunkFS) RemoveSession(uploadId string) error {
	if err := os.RemoveAll(f.sessionDir(uploadId)); err != nil {
		return errors.Wrapf(err, "删除会话目录失败: %s", uploadId)
	}
	return nil
}
