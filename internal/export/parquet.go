// Package export writes the message index of a scanned file as Parquet.
package export

import (
	"fmt"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/ligfx/garmin-fit-fixer/internal/fit"
	"github.com/ligfx/garmin-fit-fixer/internal/verify"
)

type messageRow struct {
	Offset       int64  `parquet:"name=offset, type=INT64"`
	Size         int32  `parquet:"name=size, type=INT32"`
	Kind         string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	LocalType    int32  `parquet:"name=local_type, type=INT32"`
	GlobalNum    int32  `parquet:"name=global_num, type=INT32"`
	Message      string `parquet:"name=message, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	HasTimestamp bool   `parquet:"name=has_timestamp, type=BOOLEAN"`
	Timestamp    int64  `parquet:"name=timestamp, type=INT64"`
	TimeUTC      string `parquet:"name=time_utc, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func rowOf(m fit.MessageInfo) messageRow {
	row := messageRow{
		Offset:       int64(m.Offset),
		Size:         int32(m.Size),
		Kind:         m.Kind.String(),
		LocalType:    int32(m.LocalType),
		GlobalNum:    int32(m.GlobalNum),
		HasTimestamp: m.HasTimestamp,
	}
	if m.Kind != fit.KindDefinition {
		row.Message = verify.MessageName(m.GlobalNum)
	}
	if m.HasTimestamp {
		row.Timestamp = int64(m.Timestamp)
		row.TimeUTC = fit.TimestampTime(m.Timestamp).UTC().Format("2006-01-02T15:04:05Z")
	}
	return row
}

func writeRows(fw source.ParquetFile, msgs []fit.MessageInfo) error {
	pw, err := writer.NewParquetWriter(fw, new(messageRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, m := range msgs {
		if err := pw.Write(rowOf(m)); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

// WriteMessageIndex writes one row per message to a Parquet file at path.
func WriteMessageIndex(path string, msgs []fit.MessageInfo) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := writeRows(fw, msgs); err != nil {
		_ = fw.Close()
		return fmt.Errorf("write message index: %w", err)
	}
	return fw.Close()
}

// MarshalMessageIndex returns the Parquet encoding of the message index.
func MarshalMessageIndex(msgs []fit.MessageInfo) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeRows(fw, msgs); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}
