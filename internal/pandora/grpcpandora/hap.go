package grpcpandora

import (
	"context"
	"fmt"

	"github.com/srg/btharness/internal/pandora"
)

const hapService = "pandora.HAP"

type hapClient struct {
	c *Client
}

func (h *hapClient) withConn(name string, conn *pandora.Connection) (msg, error) {
	return h.c.schema.withConnection(pandoraMessage(name), conn)
}

func (h *hapClient) GetFeatures(ctx context.Context, conn *pandora.Connection) (byte, error) {
	req, err := h.withConn("GetFeaturesRequest", conn)
	if err != nil {
		return 0, err
	}
	resp, err := h.c.invoke(ctx, hapService, "GetFeatures", req)
	if err != nil {
		return 0, err
	}
	return byte(resp.uint("features")), nil
}

func (h *hapClient) WaitPeripheral(ctx context.Context, conn *pandora.Connection) error {
	req, err := h.withConn("WaitPeripheralRequest", conn)
	if err != nil {
		return err
	}
	_, err = h.c.invoke(ctx, hapService, "WaitPeripheral", req)
	return err
}

func (h *hapClient) GetAllPresetRecords(ctx context.Context, conn *pandora.Connection) ([]pandora.PresetRecord, error) {
	req, err := h.withConn("GetAllPresetRecordsRequest", conn)
	if err != nil {
		return nil, err
	}
	resp, err := h.c.invoke(ctx, hapService, "GetAllPresetRecords", req)
	if err != nil {
		return nil, err
	}
	return presetsFrom(resp.list("preset_record_list")), nil
}

func (h *hapClient) GetPresetRecord(ctx context.Context, conn *pandora.Connection, index uint32) (*pandora.PresetRecord, error) {
	req, err := h.withConn("GetPresetRecordRequest", conn)
	if err != nil {
		return nil, err
	}
	req.setUint("index", index)
	resp, err := h.c.invoke(ctx, hapService, "GetPresetRecord", req)
	if err != nil {
		return nil, err
	}
	rec := presetFrom(resp.sub("preset_record"))
	return &rec, nil
}

func (h *hapClient) GetActivePresetRecord(ctx context.Context, conn *pandora.Connection) (*pandora.PresetRecord, error) {
	req, err := h.withConn("GetActivePresetRecordRequest", conn)
	if err != nil {
		return nil, err
	}
	resp, err := h.c.invoke(ctx, hapService, "GetActivePresetRecord", req)
	if err != nil {
		return nil, err
	}
	if !resp.has("preset_record") {
		return nil, nil
	}
	rec := presetFrom(resp.sub("preset_record"))
	return &rec, nil
}

func (h *hapClient) SetActivePreset(ctx context.Context, conn *pandora.Connection, index uint32) error {
	req, err := h.withConn("SetActivePresetRequest", conn)
	if err != nil {
		return err
	}
	req.setUint("index", index)
	_, err = h.c.invoke(ctx, hapService, "SetActivePreset", req)
	return err
}

func (h *hapClient) SetNextPreset(ctx context.Context, conn *pandora.Connection) error {
	req, err := h.withConn("SetNextPresetRequest", conn)
	if err != nil {
		return err
	}
	_, err = h.c.invoke(ctx, hapService, "SetNextPreset", req)
	return err
}

func (h *hapClient) SetPreviousPreset(ctx context.Context, conn *pandora.Connection) error {
	req, err := h.withConn("SetPreviousPresetRequest", conn)
	if err != nil {
		return err
	}
	_, err = h.c.invoke(ctx, hapService, "SetPreviousPreset", req)
	return err
}

func (h *hapClient) WritePresetName(ctx context.Context, conn *pandora.Connection, index uint32, name string) error {
	req, err := h.withConn("WritePresetNameRequest", conn)
	if err != nil {
		return err
	}
	req.setUint("index", index).setString("name", name)
	_, err = h.c.invoke(ctx, hapService, "WritePresetName", req)
	return err
}

// WaitPresetChanged blocks until the remote reports a preset change and returns the
// preset list carried by the notification.
func (h *hapClient) WaitPresetChanged(ctx context.Context) ([]pandora.PresetRecord, error) {
	req, err := h.c.request(hapService, "WaitPresetChanged")
	if err != nil {
		return nil, err
	}
	resp, err := h.c.invoke(ctx, hapService, "WaitPresetChanged", req)
	if err != nil {
		return nil, err
	}
	return presetsFrom(resp.list("preset_record_list")), nil
}

func (h *hapClient) HaPlaybackAudio(ctx context.Context, source *pandora.Source) (pandora.AudioStream, error) {
	if source == nil {
		return nil, fmt.Errorf("HaPlaybackAudio: nil source")
	}
	s, err := h.c.openAudioStream(ctx, hapService, "HaPlaybackAudio", func(data []byte) (msg, error) {
		m := h.c.schema.newMsg("pandora.HaPlaybackAudioRequest").setBytes("data", data)
		return m, m.setRaw("source", source.Raw())
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
