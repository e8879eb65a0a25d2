package uploadcore

import (
	"context"
	"fmt"
)

// ResumeSession 计算断点续传所需的缺失分片，客户端只需补传 MissingChunks
func (s *Service) ResumeSession(ctx context.Context, cooperativeId uint64, uploadId string) (*ResumeInfo, error) {
	sess, err := s.loadSession(ctx, cooperativeId, uploadId)
	if err != nil {
		return nil, err
	}

	chunks, err := s.store.ListChunks(ctx, sess.Id)
	if err != nil {
		return nil, fmt.Errorf("查询分片列表失败: %w", err)
	}

	info := &ResumeInfo{
		UploadId:        sess.UploadId,
		Status:          sess.Status,
		CanResume:       !sess.Status.IsTerminal() && !sess.IsExpiredAt(s.now()),
		ChunkSize:       sess.ChunkSize,
		TotalChunks:     sess.TotalChunks,
		CompletedChunks: []int64{},
		MissingChunks:   []int64{},
		FailedChunks:    []int64{},
	}

	uploaded := make(map[int64]struct{}, len(chunks))
	for _, c := range chunks {
		switch c.Status {
		case ChunkUploaded:
			uploaded[c.ChunkNumber] = struct{}{}
		case ChunkFailed:
			info.FailedChunks = append(info.FailedChunks, c.ChunkNumber)
		}
	}
	for n := int64(0); n < sess.TotalChunks; n++ {
		if _, ok := uploaded[n]; ok {
			info.CompletedChunks = append(info.CompletedChunks, n)
		} else {
			info.MissingChunks = append(info.MissingChunks, n)
		}
	}
	return info, nil
}
