package coordinator

import "time"

// startTicker launches the session's periodic public snapshot broadcast,
// matching the original gateway's 20Hz market_data_broadcast loop
// (asyncio.sleep(0.05)). The ticker is the one suspension point besides
// outbound sends; it never touches the engine directly — it goes through
// sess.run so every read is serialized behind the room's worker goroutine.
func startTicker(sess *Session, intervalMS int) {
	if intervalMS <= 0 {
		intervalMS = 50
	}
	interval := time.Duration(intervalMS) * time.Millisecond

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-sess.stopTicker:
				return
			case <-t.C:
				if !sess.Active() {
					return
				}
				tick(sess)
			}
		}
	}()
}

// tick broadcasts a top-5-depth snapshot for every instrument in the room.
func tick(sess *Session) {
	sess.run(func() {
		for _, inst := range sess.Engine.Instruments.List() {
			if env, ok := mdIncEnvelope(sess, inst.ID, 5); ok {
				broadcastPublic(sess, env)
			}
		}
	})
}
