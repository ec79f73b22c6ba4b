package transport

import (
	_ "embed"

	"github.com/alapierre/go-dian-client/dian/util"
)

const (
	actionSendBillSync = "http://wcf.dian.colombia/IWcfDianCustomerServices/SendBillSync"
	actionGetStatus    = "http://wcf.dian.colombia/IWcfDianCustomerServices/GetStatus"
)

//go:embed soap/SendBillSync.xml
var sendBillSyncTemplate string

//go:embed soap/GetStatus.xml
var getStatusTemplate string

type sendBillSyncRequest struct {
	Action   string
	Endpoint string
	FileName string
	Content  []byte
}

type getStatusRequest struct {
	Action   string
	Endpoint string
	TrackID  string
}

func sendBillSyncEnvelope(endpoint, fileName string, zipped []byte) ([]byte, error) {
	return util.MergeTemplate(&sendBillSyncTemplate, sendBillSyncRequest{
		Action:   actionSendBillSync,
		Endpoint: endpoint,
		FileName: fileName,
		Content:  zipped,
	})
}

func getStatusEnvelope(endpoint, trackID string) ([]byte, error) {
	return util.MergeTemplate(&getStatusTemplate, getStatusRequest{
		Action:   actionGetStatus,
		Endpoint: endpoint,
		TrackID:  trackID,
	})
}
