package artifact

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// LocalStore 本地目录存储，暂存文件与根目录需在同一文件系统以保证 rename 原子
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("本地存储目录不能为空")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "解析本地存储目录失败: %s", root)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.Wrapf(err, "创建本地存储目录失败: %s", abs)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) Commit(_ context.Context, stagedPath, key string) (string, error) {
	final, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		return "", errors.Wrap(err, "创建产物目录失败")
	}
	if err := os.Rename(stagedPath, final); err != nil {
		return "", errors.Wrapf(err, "发布产物失败: %s", key)
	}
	return final, nil
}

func (s *LocalStore) Remove(_ context.Context, location string) error {
	if !s.within(location) {
		return errors.Errorf("产物路径不在存储目录内: %s", location)
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "删除产物失败: %s", location)
	}
	return nil
}

func (s *LocalStore) Close() error { return nil }

// resolve key 只能落在根目录之内
func (s *LocalStore) resolve(key string) (string, error) {
	final := filepath.Join(s.root, filepath.FromSlash(key))
	if !s.within(final) {
		return "", errors.Errorf("非法的产物路径: %s", key)
	}
	return final, nil
}

func (s *LocalStore) within(p string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(p))
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}
