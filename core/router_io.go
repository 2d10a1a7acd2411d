package core

import (
	"github.com/encodeous/dvr/perf"
	"github.com/encodeous/dvr/protocol"
	"github.com/encodeous/dvr/state"
)

func marshalAdvert(adv state.Advertisement) []byte {
	pkt := protocol.Marshal(adv)
	perf.AdvertSent(adv.Src, len(pkt))
	return pkt
}

func unmarshalAdvert(pkt []byte) (state.Advertisement, error) {
	adv, err := protocol.Unmarshal(pkt)
	if err != nil {
		perf.AdvertMalformed()
		return adv, err
	}
	perf.AdvertRecv(adv.Src, len(pkt))
	return adv, nil
}

func advertsDropped(from state.NodeId) {
	perf.AdvertDropped(from)
}
