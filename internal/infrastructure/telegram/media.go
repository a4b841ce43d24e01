package telegram

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gotd/td/tg"

	"github.com/Conte777/TeleVault/internal/domain"
	pkgerrors "github.com/Conte777/TeleVault/pkg/errors"
)

// resolvePeer resolves "@username" or "me" to an input peer. Numeric IDs
// are not supported because they require an access hash we don't have.
// Resolved peers are cached for the lifetime of the transport.
func (t *Transport) resolvePeer(ctx context.Context, peer string) (tg.InputPeerClass, error) {
	if peer == "me" {
		return &tg.InputPeerSelf{}, nil
	}
	if !strings.HasPrefix(peer, "@") {
		return nil, pkgerrors.NewValidationErrorf("peer must be @username or me, got %q", peer)
	}

	t.mu.RLock()
	cached, ok := t.peers[peer]
	t.mu.RUnlock()
	if ok {
		return cached, nil
	}

	api, err := t.apiClient()
	if err != nil {
		return nil, err
	}

	resolved, err := api.ContactsResolveUsername(ctx, strings.TrimPrefix(peer, "@"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve peer %s: %w", peer, mapRPCError(err))
	}

	var input tg.InputPeerClass
	for _, chat := range resolved.Chats {
		if channel, ok := chat.(*tg.Channel); ok {
			input = &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
			break
		}
	}
	if input == nil {
		for _, user := range resolved.Users {
			if u, ok := user.(*tg.User); ok {
				input = &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
				break
			}
		}
	}
	if input == nil {
		return nil, pkgerrors.NewValidationErrorf("peer %s resolved to nothing usable", peer)
	}

	t.mu.Lock()
	t.peers[peer] = input
	t.mu.Unlock()
	return input, nil
}

// ResolveMedia fetches the referenced message and extracts its media
// metadata. The file location is cached so DownloadChunk can reuse it.
func (t *Transport) ResolveMedia(ctx context.Context, ref domain.MediaRef) (domain.MediaInfo, error) {
	input, err := t.resolvePeer(ctx, ref.Peer)
	if err != nil {
		return domain.MediaInfo{}, err
	}

	api, err := t.apiClient()
	if err != nil {
		return domain.MediaInfo{}, err
	}

	msg, err := t.fetchMessage(ctx, api, input, ref.MessageID)
	if err != nil {
		return domain.MediaInfo{}, err
	}

	location, info, err := extractMedia(msg)
	if err != nil {
		return domain.MediaInfo{}, err
	}

	t.mu.Lock()
	t.locations[mediaKey{peer: ref.Peer, messageID: ref.MessageID}] = resolvedMedia{location: location, info: info}
	t.mu.Unlock()

	t.logger.Debug().
		Str("peer", ref.Peer).
		Int("message_id", ref.MessageID).
		Int64("size", info.Size).
		Str("filename", info.Filename).
		Msg("media resolved")
	return info, nil
}

func (t *Transport) fetchMessage(ctx context.Context, api *tg.Client, input tg.InputPeerClass, messageID int) (*tg.Message, error) {
	ids := []tg.InputMessageClass{&tg.InputMessageID{ID: messageID}}

	var result tg.MessagesMessagesClass
	var err error
	if channel, ok := input.(*tg.InputPeerChannel); ok {
		result, err = api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{ChannelID: channel.ChannelID, AccessHash: channel.AccessHash},
			ID:      ids,
		})
	} else {
		result, err = api.MessagesGetMessages(ctx, ids)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", messageID, mapRPCError(err))
	}

	var messages []tg.MessageClass
	switch res := result.(type) {
	case *tg.MessagesMessages:
		messages = res.Messages
	case *tg.MessagesMessagesSlice:
		messages = res.Messages
	case *tg.MessagesChannelMessages:
		messages = res.Messages
	default:
		return nil, pkgerrors.NewInternalErrorf("unexpected messages result type %T", result)
	}

	for _, m := range messages {
		if msg, ok := m.(*tg.Message); ok && msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, pkgerrors.NewValidationErrorf("message %d not found", messageID)
}

// extractMedia pulls a downloadable location out of a message. Documents
// and photos are supported; anything else is rejected.
func extractMedia(msg *tg.Message) (tg.InputFileLocationClass, domain.MediaInfo, error) {
	media, ok := msg.GetMedia()
	if !ok {
		return nil, domain.MediaInfo{}, pkgerrors.NewValidationErrorf("message %d has no media", msg.ID)
	}

	switch m := media.(type) {
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.AsNotEmpty()
		if !ok {
			return nil, domain.MediaInfo{}, pkgerrors.NewValidationErrorf("message %d document is empty", msg.ID)
		}
		info := domain.MediaInfo{
			Size:     doc.Size,
			Filename: documentFilename(doc),
			MimeType: doc.MimeType,
		}
		return doc.AsInputDocumentFileLocation(), info, nil

	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.AsNotEmpty()
		if !ok {
			return nil, domain.MediaInfo{}, pkgerrors.NewValidationErrorf("message %d photo is empty", msg.ID)
		}
		size := largestPhotoSize(photo)
		if size == nil {
			return nil, domain.MediaInfo{}, pkgerrors.NewValidationErrorf("message %d photo has no sizes", msg.ID)
		}
		location := &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     size.Type,
		}
		info := domain.MediaInfo{
			Size:     int64(size.Size),
			Filename: fmt.Sprintf("photo_%d.jpg", photo.ID),
			MimeType: "image/jpeg",
		}
		return location, info, nil

	default:
		return nil, domain.MediaInfo{}, pkgerrors.NewValidationErrorf("message %d media type %T is not downloadable", msg.ID, media)
	}
}

func documentFilename(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		if name, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return name.FileName
		}
	}
	return fmt.Sprintf("document_%d", doc.ID)
}

func largestPhotoSize(photo *tg.Photo) *tg.PhotoSize {
	var best *tg.PhotoSize
	for _, s := range photo.Sizes {
		if size, ok := s.(*tg.PhotoSize); ok {
			if best == nil || size.Size > best.Size {
				best = size
			}
		}
	}
	return best
}

// DownloadChunk fetches one chunk of previously resolved media
func (t *Transport) DownloadChunk(ctx context.Context, ref domain.MediaRef, offset int64, limit int) ([]byte, error) {
	t.mu.RLock()
	resolved, ok := t.locations[mediaKey{peer: ref.Peer, messageID: ref.MessageID}]
	t.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.NewInternalErrorf("media %s/%d was not resolved before download", ref.Peer, ref.MessageID)
	}

	api, err := t.apiClient()
	if err != nil {
		return nil, err
	}

	result, err := api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
		Location: resolved.location,
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		return nil, mapRPCError(err)
	}

	file, ok := result.(*tg.UploadFile)
	if !ok {
		return nil, pkgerrors.NewInternalErrorf("unexpected file result type %T", result)
	}
	return file.Bytes, nil
}

// BeginUpload allocates a provider-side file ID for a multipart upload
func (t *Transport) BeginUpload(ctx context.Context, size int64) (int64, error) {
	if _, err := t.apiClient(); err != nil {
		return 0, err
	}
	id, err := randomID()
	if err != nil {
		return 0, fmt.Errorf("failed to generate upload id: %w", err)
	}
	t.logger.Debug().Int64("upload_id", id).Int64("size", size).Msg("upload started")
	return id, nil
}

// UploadPart sends one part of a multipart upload. Parts must be
// uploaded in order starting from zero.
func (t *Transport) UploadPart(ctx context.Context, uploadID int64, part int, data []byte) error {
	api, err := t.apiClient()
	if err != nil {
		return err
	}

	ok, err := api.UploadSaveFilePart(ctx, &tg.UploadSaveFilePartRequest{
		FileID:   uploadID,
		FilePart: part,
		Bytes:    data,
	})
	if err != nil {
		return mapRPCError(err)
	}
	if !ok {
		return pkgerrors.NewTransientErrorf("provider rejected file part %d", part)
	}
	return nil
}

// FinishUpload commits the uploaded parts as a document message to peer
func (t *Transport) FinishUpload(ctx context.Context, uploadID int64, parts int, peer, filename, caption string, size int64) error {
	input, err := t.resolvePeer(ctx, peer)
	if err != nil {
		return err
	}

	api, err := t.apiClient()
	if err != nil {
		return err
	}

	randID, err := randomID()
	if err != nil {
		return fmt.Errorf("failed to generate random id: %w", err)
	}

	_, err = api.MessagesSendMedia(ctx, &tg.MessagesSendMediaRequest{
		Peer: input,
		Media: &tg.InputMediaUploadedDocument{
			File: &tg.InputFile{
				ID:    uploadID,
				Parts: parts,
				Name:  filename,
			},
			MimeType: "application/octet-stream",
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: filename},
			},
		},
		Message:  caption,
		RandomID: randID,
	})
	if err != nil {
		return mapRPCError(err)
	}

	t.logger.Info().
		Str("peer", peer).
		Str("filename", filename).
		Int64("size", size).
		Msg("upload finished")
	return nil
}

// SendChatAction reports upload progress to the destination chat
func (t *Transport) SendChatAction(ctx context.Context, peer string, progress int) error {
	input, err := t.resolvePeer(ctx, peer)
	if err != nil {
		return err
	}

	api, err := t.apiClient()
	if err != nil {
		return err
	}

	_, err = api.MessagesSetTyping(ctx, &tg.MessagesSetTypingRequest{
		Peer:   input,
		Action: &tg.SendMessageUploadDocumentAction{Progress: progress},
	})
	if err != nil {
		return mapRPCError(err)
	}
	return nil
}

func randomID() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	id := int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
	return id, nil
}
